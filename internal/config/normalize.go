package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTelegram()
	c.normalizeResolver()
	c.normalizeTranscode()
	c.normalizeNotifications()
	c.normalizeLogging()
	return c.applyEnvOverrides()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.EphemeralDir, err = expandPath(c.Paths.EphemeralDir); err != nil {
		return fmt.Errorf("paths.ephemeral_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTelegram() {
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	c.Telegram.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.APIBaseURL), "/")
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = defaultTelegramAPIBaseURL
	}
}

func (c *Config) normalizeResolver() {
	schemes := make([]string, 0, len(c.Resolver.AllowedSchemes))
	for _, scheme := range c.Resolver.AllowedSchemes {
		scheme = strings.ToLower(strings.TrimSpace(scheme))
		if scheme != "" {
			schemes = append(schemes, scheme)
		}
	}
	c.Resolver.AllowedSchemes = schemes
	c.Resolver.YtDlpBinary = strings.TrimSpace(c.Resolver.YtDlpBinary)
	if c.Resolver.YtDlpBinary == "" {
		c.Resolver.YtDlpBinary = defaultYtDlpBinary
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// applyEnvOverrides lets deployment environments override file values.
func (c *Config) applyEnvOverrides() error {
	if value, ok := lookupEnv("TELEGRAM_BOT_TOKEN"); ok {
		c.Telegram.BotToken = value
	}
	if value, ok := lookupEnv("NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	if value, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(value)
	}

	if err := envInt64("MAX_FILE_SIZE_BYTES", &c.Telegram.MaxFileSizeBytes); err != nil {
		return err
	}
	if err := envInt64("EPHEMERAL_QUOTA_BYTES", &c.Limits.EphemeralQuotaBytes); err != nil {
		return err
	}
	if err := envInt("MAX_CONCURRENT_JOBS", &c.Limits.MaxConcurrentJobs); err != nil {
		return err
	}
	if err := envInt("MAX_QUEUE_LENGTH", &c.Limits.MaxQueueLength); err != nil {
		return err
	}
	if err := envInt("SESSION_TTL_SECONDS", &c.Sessions.TTLSeconds); err != nil {
		return err
	}
	if err := envInt("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts); err != nil {
		return err
	}
	if err := envInt("RETRY_BASE_DELAY_MS", &c.Retry.BaseDelayMS); err != nil {
		return err
	}

	var stageTimeout int
	if err := envInt("STAGE_TIMEOUT_SECONDS", &stageTimeout); err != nil {
		return err
	}
	if stageTimeout != 0 {
		c.Stages.ResolveTimeoutSeconds = stageTimeout
		c.Stages.DownloadTimeoutSeconds = stageTimeout
		c.Stages.TranscodeTimeoutSeconds = stageTimeout
		c.Stages.UploadTimeoutSeconds = stageTimeout
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func envInt(key string, target *int) error {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func envInt64(key string, target *int64) error {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*target = parsed
	return nil
}
