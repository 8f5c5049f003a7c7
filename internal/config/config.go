package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	EphemeralDir string `toml:"ephemeral_dir"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
}

// Telegram contains configuration for the Bot API transport.
type Telegram struct {
	BotToken           string  `toml:"bot_token"`
	APIBaseURL         string  `toml:"api_base_url"`
	PollTimeoutSeconds int     `toml:"poll_timeout_seconds"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	MaxFileSizeBytes   int64   `toml:"max_file_size_bytes"`
}

// Limits contains admission and capacity settings.
type Limits struct {
	MaxConcurrentJobs   int   `toml:"max_concurrent_jobs"`
	MaxQueueLength      int   `toml:"max_queue_length"`
	EphemeralQuotaBytes int64 `toml:"ephemeral_quota_bytes"`
	ResolveWorkers      int   `toml:"resolve_workers"`
}

// Sessions contains conversational session lifetimes.
type Sessions struct {
	TTLSeconds           int `toml:"ttl_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	GraceSeconds         int `toml:"grace_seconds"`
}

// Stages contains per-stage deadlines.
type Stages struct {
	ResolveTimeoutSeconds      int     `toml:"resolve_timeout_seconds"`
	DownloadTimeoutSeconds     int     `toml:"download_timeout_seconds"`
	TranscodeTimeoutSeconds    int     `toml:"transcode_timeout_seconds"`
	UploadTimeoutSeconds       int     `toml:"upload_timeout_seconds"`
	TranscodeTimeoutMultiplier float64 `toml:"transcode_timeout_multiplier"`
	CancelGraceSeconds         int     `toml:"cancel_grace_seconds"`
	AckTimeoutSeconds          int     `toml:"ack_timeout_seconds"`
	ProgressIntervalSeconds    int     `toml:"progress_interval_seconds"`
}

// Retry contains the backoff policy shared by the stage executors.
type Retry struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelayMS int     `toml:"base_delay_ms"`
	MaxDelayMS  int     `toml:"max_delay_ms"`
	Jitter      float64 `toml:"jitter"`
}

// Resolver contains URL resolution settings.
type Resolver struct {
	CacheTTLSeconds int      `toml:"cache_ttl_seconds"`
	CacheEntries    int      `toml:"cache_entries"`
	AllowedSchemes  []string `toml:"allowed_schemes"`
	YtDlpBinary     string   `toml:"ytdlp_binary"`
}

// Transcode contains ffmpeg settings.
type Transcode struct {
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	FFprobeBinary    string `toml:"ffprobe_binary"`
	AudioBitrateKbps int    `toml:"audio_bitrate_kbps"`
}

// Ephemeral contains ephemeral storage housekeeping settings.
type Ephemeral struct {
	SweepGraceSeconds    int `toml:"sweep_grace_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// Notifications contains configuration for operator ntfy alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobFailures    bool   `toml:"job_failures"`
	Capacity       bool   `toml:"capacity"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for fetchbot.
//
// Configuration sections by subsystem:
//   - Paths: ephemeral storage, state database/socket, logs
//   - Telegram: Bot API transport and platform upload ceiling
//   - Limits: worker pool size, queue bound, storage quota
//   - Sessions: conversation TTL and sweeping
//   - Stages: per-stage deadlines and grace periods
//   - Retry: backoff policy shared by download, transcode and upload
//   - Resolver: URL cache and extraction binary
//   - Transcode: ffmpeg/ffprobe binaries
//   - Ephemeral: orphan sweep timing
//   - Notifications: operator ntfy alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Telegram      Telegram      `toml:"telegram"`
	Limits        Limits        `toml:"limits"`
	Sessions      Sessions      `toml:"sessions"`
	Stages        Stages        `toml:"stages"`
	Retry         Retry         `toml:"retry"`
	Resolver      Resolver      `toml:"resolver"`
	Transcode     Transcode     `toml:"transcode"`
	Ephemeral     Ephemeral     `toml:"ephemeral"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fetchbot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fetchbot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.EphemeralDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "fetchbot.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "fetchbotd.lock")
}

// PIDPath returns the file the running daemon records its process ID in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "fetchbot.pid")
}

// HistoryDBPath returns the SQLite database location for job history.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// StageTimeout returns the deadline applied to one attempt of the named stage.
func (c *Config) StageTimeout(stage string) time.Duration {
	var seconds int
	switch stage {
	case "resolve":
		seconds = c.Stages.ResolveTimeoutSeconds
	case "download":
		seconds = c.Stages.DownloadTimeoutSeconds
	case "transcode":
		seconds = c.Stages.TranscodeTimeoutSeconds
	case "upload":
		seconds = c.Stages.UploadTimeoutSeconds
	}
	if seconds <= 0 {
		seconds = defaultStageTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// SessionTTL returns the idle lifetime of a conversation.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.TTLSeconds) * time.Second
}

// RetryBaseDelay returns the first backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff ceiling.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
