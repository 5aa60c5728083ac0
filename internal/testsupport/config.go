package testsupport

import (
	"path/filepath"
	"testing"

	"nica/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.AnalysisRoot = filepath.Join(base, "analysis")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Logging.Format = "json"
	cfgVal.Analysis.TaskName = "Tapping"
	cfgVal.Analysis.Trials = 3
	cfgVal.Analysis.TaskLength = 20
	cfgVal.Analysis.PreTaskLength = 5
	cfgVal.Analysis.PostTaskLength = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAnalysis edits the analysis settings of the test config.
func WithAnalysis(edit func(*config.Analysis)) ConfigOption {
	return func(b *configBuilder) {
		edit(&b.cfg.Analysis)
	}
}

// WithNtfyTopic points notifications at a test server.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
