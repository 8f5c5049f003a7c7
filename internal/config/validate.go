package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateSessions(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateForDaemon applies the additional checks required to run the bot.
func (c *Config) ValidateForDaemon() error {
	if c.Telegram.BotToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/fetchbot/config.toml"
		}
		return fmt.Errorf("telegram.bot_token is required. Set TELEGRAM_BOT_TOKEN env var or edit %s (create with 'fetchbot config init')", defaultPath)
	}
	return c.Validate()
}

func (c *Config) validateTelegram() error {
	if c.Telegram.MaxFileSizeBytes <= 0 {
		return errors.New("telegram.max_file_size_bytes must be positive")
	}
	if c.Telegram.PollTimeoutSeconds < 0 {
		return errors.New("telegram.poll_timeout_seconds must be >= 0")
	}
	if c.Telegram.RequestsPerSecond <= 0 {
		return errors.New("telegram.requests_per_second must be positive")
	}
	if !strings.HasPrefix(c.Telegram.APIBaseURL, "http://") && !strings.HasPrefix(c.Telegram.APIBaseURL, "https://") {
		return fmt.Errorf("telegram.api_base_url must be an http(s) URL, got %q", c.Telegram.APIBaseURL)
	}
	return nil
}

func (c *Config) validateLimits() error {
	if err := ensurePositiveMap(map[string]int{
		"limits.max_concurrent_jobs": c.Limits.MaxConcurrentJobs,
		"limits.max_queue_length":    c.Limits.MaxQueueLength,
		"limits.resolve_workers":     c.Limits.ResolveWorkers,
	}); err != nil {
		return err
	}
	if c.Limits.EphemeralQuotaBytes <= 0 {
		return errors.New("limits.ephemeral_quota_bytes must be positive")
	}
	if c.Limits.EphemeralQuotaBytes < c.Telegram.MaxFileSizeBytes {
		return errors.New("limits.ephemeral_quota_bytes must be at least telegram.max_file_size_bytes")
	}
	return nil
}

func (c *Config) validateSessions() error {
	if err := ensurePositiveMap(map[string]int{
		"sessions.ttl_seconds":            c.Sessions.TTLSeconds,
		"sessions.sweep_interval_seconds": c.Sessions.SweepIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Sessions.GraceSeconds < 0 {
		return errors.New("sessions.grace_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateStages() error {
	if err := ensurePositiveMap(map[string]int{
		"stages.resolve_timeout_seconds":   c.Stages.ResolveTimeoutSeconds,
		"stages.download_timeout_seconds":  c.Stages.DownloadTimeoutSeconds,
		"stages.transcode_timeout_seconds": c.Stages.TranscodeTimeoutSeconds,
		"stages.upload_timeout_seconds":    c.Stages.UploadTimeoutSeconds,
		"stages.ack_timeout_seconds":       c.Stages.AckTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Stages.TranscodeTimeoutMultiplier < 1 {
		return errors.New("stages.transcode_timeout_multiplier must be >= 1")
	}
	if c.Stages.CancelGraceSeconds < 0 {
		return errors.New("stages.cancel_grace_seconds must be >= 0")
	}
	if c.Stages.ProgressIntervalSeconds < 0 {
		return errors.New("stages.progress_interval_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelayMS < 0 {
		return errors.New("retry.base_delay_ms must be >= 0")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("retry.jitter must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateResolver() error {
	if err := ensurePositiveMap(map[string]int{
		"resolver.cache_ttl_seconds": c.Resolver.CacheTTLSeconds,
		"resolver.cache_entries":     c.Resolver.CacheEntries,
	}); err != nil {
		return err
	}
	if len(c.Resolver.AllowedSchemes) == 0 {
		return errors.New("resolver.allowed_schemes must list at least one scheme")
	}
	for _, scheme := range c.Resolver.AllowedSchemes {
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("resolver.allowed_schemes: unsupported scheme %q", scheme)
		}
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.AudioBitrateKbps < 32 || c.Transcode.AudioBitrateKbps > 320 {
		return errors.New("transcode.audio_bitrate_kbps must be between 32 and 320")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
