package config

const (
	defaultEphemeralDir               = "~/.local/share/fetchbot/ephemeral"
	defaultStateDir                   = "~/.local/share/fetchbot"
	defaultLogDir                     = "~/.local/share/fetchbot/logs"
	defaultTelegramAPIBaseURL         = "https://api.telegram.org"
	defaultTelegramPollTimeout        = 50
	defaultTelegramRequestsPerSecond  = 25
	defaultMaxFileSizeBytes           = 50 * 1024 * 1024
	defaultMaxConcurrentJobs          = 3
	defaultMaxQueueLength             = 50
	defaultEphemeralQuotaBytes        = 8 * 1024 * 1024 * 1024
	defaultResolveWorkers             = 4
	defaultSessionTTLSeconds          = 3600
	defaultSessionSweepInterval       = 60
	defaultSessionGraceSeconds        = 300
	defaultStageTimeoutSeconds        = 900
	defaultResolveTimeoutSeconds      = 60
	defaultTranscodeTimeoutMultiplier = 1.5
	defaultCancelGraceSeconds         = 10
	defaultAckTimeoutSeconds          = 30
	defaultProgressIntervalSeconds    = 3
	defaultRetryMaxAttempts           = 3
	defaultRetryBaseDelayMS           = 500
	defaultRetryMaxDelayMS            = 30000
	defaultRetryJitter                = 0.25
	defaultResolverCacheTTLSeconds    = 300
	defaultResolverCacheEntries       = 256
	defaultYtDlpBinary                = "yt-dlp"
	defaultFFmpegBinary               = "ffmpeg"
	defaultFFprobeBinary              = "ffprobe"
	defaultAudioBitrateKbps           = 192
	defaultEphemeralSweepGrace        = 3600
	defaultEphemeralSweepInterval     = 600
	defaultNotifyRequestTimeout       = 10
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
	defaultLogRetentionDays           = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			EphemeralDir: defaultEphemeralDir,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
		},
		Telegram: Telegram{
			APIBaseURL:         defaultTelegramAPIBaseURL,
			PollTimeoutSeconds: defaultTelegramPollTimeout,
			RequestsPerSecond:  defaultTelegramRequestsPerSecond,
			MaxFileSizeBytes:   defaultMaxFileSizeBytes,
		},
		Limits: Limits{
			MaxConcurrentJobs:   defaultMaxConcurrentJobs,
			MaxQueueLength:      defaultMaxQueueLength,
			EphemeralQuotaBytes: defaultEphemeralQuotaBytes,
			ResolveWorkers:      defaultResolveWorkers,
		},
		Sessions: Sessions{
			TTLSeconds:           defaultSessionTTLSeconds,
			SweepIntervalSeconds: defaultSessionSweepInterval,
			GraceSeconds:         defaultSessionGraceSeconds,
		},
		Stages: Stages{
			ResolveTimeoutSeconds:      defaultResolveTimeoutSeconds,
			DownloadTimeoutSeconds:     defaultStageTimeoutSeconds,
			TranscodeTimeoutSeconds:    defaultStageTimeoutSeconds,
			UploadTimeoutSeconds:       defaultStageTimeoutSeconds,
			TranscodeTimeoutMultiplier: defaultTranscodeTimeoutMultiplier,
			CancelGraceSeconds:         defaultCancelGraceSeconds,
			AckTimeoutSeconds:          defaultAckTimeoutSeconds,
			ProgressIntervalSeconds:    defaultProgressIntervalSeconds,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
			Jitter:      defaultRetryJitter,
		},
		Resolver: Resolver{
			CacheTTLSeconds: defaultResolverCacheTTLSeconds,
			CacheEntries:    defaultResolverCacheEntries,
			AllowedSchemes:  []string{"http", "https"},
			YtDlpBinary:     defaultYtDlpBinary,
		},
		Transcode: Transcode{
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			AudioBitrateKbps: defaultAudioBitrateKbps,
		},
		Ephemeral: Ephemeral{
			SweepGraceSeconds:    defaultEphemeralSweepGrace,
			SweepIntervalSeconds: defaultEphemeralSweepInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobFailures:    true,
			Capacity:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
