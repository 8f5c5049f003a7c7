package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"fetchbot/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are shortened so failure paths run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Telegram.BotToken = "test-token"
	cfgVal.Paths.EphemeralDir = filepath.Join(base, "ephemeral")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Retry.BaseDelayMS = 1
	cfgVal.Retry.MaxDelayMS = 5
	cfgVal.Retry.Jitter = 0

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

// WithLimits overrides worker count and queue bound.
func WithLimits(workers, queueLength int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Limits.MaxConcurrentJobs = workers
		b.cfg.Limits.MaxQueueLength = queueLength
	}
}

// WithSizeLimit overrides the platform upload ceiling.
func WithSizeLimit(bytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telegram.MaxFileSizeBytes = bytes
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default fetchbot external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg", "ffprobe"}
		}
		for _, name := range names {
			writeStub(b.t, b.baseDir, name, "#!/bin/sh\nexit 0\n")
		}
		prependPath(b.t, filepath.Join(b.baseDir, "bin"))
	}
}

// WithStubScript writes a stub executable with the given shell body and
// points the matching config binary at it.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		path := writeStub(b.t, b.baseDir, name, "#!/bin/sh\n"+body+"\n")
		switch name {
		case "yt-dlp":
			b.cfg.Resolver.YtDlpBinary = path
		case "ffmpeg":
			b.cfg.Transcode.FFmpegBinary = path
		case "ffprobe":
			b.cfg.Transcode.FFprobeBinary = path
		}
	}
}

// StubScript writes an executable shell script into a temp directory and
// returns its path.
func StubScript(t testing.TB, name, body string) string {
	t.Helper()
	return writeStub(t, t.TempDir(), name, "#!/bin/sh\n"+body+"\n")
}

func writeStub(t testing.TB, base, name, script string) string {
	t.Helper()
	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

func prependPath(t testing.TB, dir string) {
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.EphemeralDir)
}
