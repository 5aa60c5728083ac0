package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nica/internal/config"
	"nica/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func configFor(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configFor(""))
	if err := svc.NotifyAnalysisFailed(context.Background(), "rec", "Probeset not ok.", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(srv.URL))
	ctx := context.Background()

	if err := svc.NotifyAnalysisCompleted(ctx, "subject01", "/analysis/subject01/Left", 95*time.Second); err != nil {
		t.Fatalf("NotifyAnalysisCompleted: %v", err)
	}
	if err := svc.NotifyAnalysisFailed(ctx, "subject01", "Probeset not ok.", errors.New("unknown probe set")); err != nil {
		t.Fatalf("NotifyAnalysisFailed: %v", err)
	}
	if err := svc.NotifyGrandAverageCompleted(ctx, "Left", 3, "/analysis/Grand Average/Left"); err != nil {
		t.Fatalf("NotifyGrandAverageCompleted: %v", err)
	}

	if len(*got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(*got))
	}
	first := (*got)[0]
	if first.title != "NICA - Analysis Finished" || first.tags != "nica,analysis,completed" {
		t.Fatalf("unexpected headers: %#v", first)
	}
	if first.body != "Analysis finished: subject01 in 1m35s\nResults: /analysis/subject01/Left" {
		t.Fatalf("unexpected body %q", first.body)
	}
	failed := (*got)[1]
	if failed.priority != "high" || failed.body != "Analysis failed for subject01 (Probeset not ok.): unknown probe set" {
		t.Fatalf("unexpected failure payload: %#v", failed)
	}
	if !strings.HasPrefix((*got)[2].body, "Grand average of 3 runs finished for condition Left") {
		t.Fatalf("unexpected grand average body %q", (*got)[2].body)
	}
}

func TestNtfyServiceHonoursSwitches(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	cfg := configFor(srv.URL)
	cfg.Notifications.Completion = false
	svc := notifications.NewService(cfg)

	if err := svc.NotifyAnalysisCompleted(context.Background(), "rec", "", time.Second); err != nil {
		t.Fatalf("NotifyAnalysisCompleted: %v", err)
	}
	if err := svc.NotifyAnalysisFailed(context.Background(), "rec", "", nil); err != nil {
		t.Fatalf("NotifyAnalysisFailed: %v", err)
	}
	if len(*got) != 1 || (*got)[0].body != "Analysis failed for rec: unknown" {
		t.Fatalf("expected only the failure push, got %#v", *got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway)
	svc := notifications.NewService(configFor(srv.URL))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 502: nope") {
		t.Fatalf("expected ntfy status error, got %v", err)
	}
}
