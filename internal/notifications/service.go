package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nica/internal/config"
)

const userAgent = "nica/0.1.0"

// Service defines the notification surface exposed to the pipeline host.
type Service interface {
	NotifyAnalysisCompleted(ctx context.Context, label, evalPath string, duration time.Duration) error
	NotifyAnalysisFailed(ctx context.Context, label, status string, err error) error
	NotifyGrandAverageCompleted(ctx context.Context, condition string, bundles int, dir string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned. The
// completion and error switches silence the respective events.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) NotifyAnalysisCompleted(ctx context.Context, label, evalPath string, duration time.Duration) error {
	if !n.completion {
		return nil
	}
	message := fmt.Sprintf("Analysis finished: %s in %s", strings.TrimSpace(label), formatDuration(duration))
	if evalPath = strings.TrimSpace(evalPath); evalPath != "" {
		message = fmt.Sprintf("%s\nResults: %s", message, evalPath)
	}
	return n.send(ctx, payload{
		title:   "NICA - Analysis Finished",
		message: message,
		tags:    []string{"nica", "analysis", "completed"},
	})
}

func (n *ntfyService) NotifyAnalysisFailed(ctx context.Context, label, status string, err error) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Analysis failed")
	if label = strings.TrimSpace(label); label != "" {
		builder.WriteString(" for ")
		builder.WriteString(label)
	}
	if status = strings.TrimSpace(status); status != "" {
		builder.WriteString(" (")
		builder.WriteString(status)
		builder.WriteString(")")
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "NICA - Error",
		message:  builder.String(),
		tags:     []string{"nica", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyGrandAverageCompleted(ctx context.Context, condition string, bundles int, dir string) error {
	if !n.completion {
		return nil
	}
	message := fmt.Sprintf("Grand average of %d runs finished for condition %s", bundles, strings.TrimSpace(condition))
	if dir = strings.TrimSpace(dir); dir != "" {
		message = fmt.Sprintf("%s\nResults: %s", message, dir)
	}
	return n.send(ctx, payload{
		title:   "NICA - Grand Average Finished",
		message: message,
		tags:    []string{"nica", "grand-average", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "NICA - Test",
		message:  "Notification system test",
		tags:     []string{"nica", "test"},
		priority: "low",
	})
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyAnalysisCompleted(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyAnalysisFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyGrandAverageCompleted(context.Context, string, int, string) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
