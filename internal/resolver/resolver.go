package resolver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"fetchbot/internal/config"
	"fetchbot/internal/language"
	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
)

// Resolver validates, caches and resolves URLs.
type Resolver struct {
	extractor Extractor
	schemes   []string
	cache     *resolutionCache
	group     singleflight.Group
	policy    services.RetryPolicy
	logger    *slog.Logger
}

// New builds a resolver from configuration. A nil extractor uses yt-dlp.
func New(cfg *config.Config, extractor Extractor, logger *slog.Logger) *Resolver {
	if extractor == nil {
		extractor = YtDlpExtractor{Binary: cfg.Resolver.YtDlpBinary}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "resolver")
	r := &Resolver{
		extractor: extractor,
		schemes:   append([]string(nil), cfg.Resolver.AllowedSchemes...),
		cache:     newResolutionCache(cfg.Resolver.CacheEntries, time.Duration(cfg.Resolver.CacheTTLSeconds)*time.Second),
		logger:    logger,
	}
	r.policy = services.RetryPolicy{
		MaxAttempts:    2,
		BaseDelay:      cfg.RetryBaseDelay(),
		MaxDelay:       cfg.RetryMaxDelay(),
		Jitter:         cfg.Retry.Jitter,
		AttemptTimeout: cfg.StageTimeout("resolve"),
		Classify: func(err error) bool {
			return errors.Is(err, services.ErrResolution) && services.IsRetryable(err)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Info("retrying resolution",
				logging.Attempt(attempt),
				logging.Duration("delay", delay),
				logging.Error(err),
				logging.String(logging.FieldEventType, "resolve_retry"),
			)
		},
	}
	return r
}

// Resolve returns the format choices for raw. Identical normalized URLs
// within the cache TTL are served without calling the extractor.
func (r *Resolver) Resolve(ctx context.Context, raw string) (media.Resolution, error) {
	parsed, err := ValidateURL(raw, r.schemes)
	if err != nil {
		return media.Resolution{}, err
	}
	key := NormalizeKey(parsed)
	if cached, ok := r.cache.get(key); ok {
		r.logger.Debug("resolution cache hit", logging.String("url", key))
		return cached, nil
	}

	// Waiters share one extraction; it outlives any single caller's context.
	ch := r.group.DoChan(key, func() (any, error) {
		res, err := r.extract(context.WithoutCancel(ctx), parsed.String())
		if err != nil {
			return media.Resolution{}, err
		}
		r.cache.put(key, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return media.Resolution{}, services.ContextError(ctx)
	case result := <-ch:
		if result.Err != nil {
			return media.Resolution{}, result.Err
		}
		return cloneResolution(result.Val.(media.Resolution)), nil
	}
}

// Stats reports cache counters.
func (r *Resolver) Stats() CacheStats {
	return r.cache.stats()
}

func (r *Resolver) extract(ctx context.Context, url string) (media.Resolution, error) {
	started := time.Now()
	var (
		info    media.Info
		formats []RawFormat
	)
	err := r.policy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		info, formats, err = r.extractor.Extract(ctx, url)
		return classifyExtractError(err)
	})
	if err != nil {
		r.logger.Warn("resolution failed",
			logging.String("url", url),
			logging.Error(err),
			logging.ErrorKind(services.KindOf(err)),
			logging.String(logging.FieldEventType, "resolve_failed"),
			logging.String(logging.FieldErrorHint, "check the link or update yt-dlp"),
			logging.String(logging.FieldImpact, "user cannot choose a format"),
		)
		return media.Resolution{}, err
	}

	options := BuildOptions(formats)
	if len(options) == 0 {
		return media.Resolution{}, services.Wrap(services.ErrUnsupportedSource, "resolve", "formats", "no downloadable formats", nil)
	}
	r.logger.Info("resolved url",
		logging.String("url", url),
		logging.String("title", info.DisplayTitle()),
		logging.Int("format_count", len(options)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "resolve_completed"),
	)
	return media.Resolution{URL: url, Info: info, Options: options}, nil
}

// classifyExtractError makes sure collaborator errors carry a taxonomy
// marker; unmarked failures are treated as transient resolution errors.
func classifyExtractError(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range []error{
		services.ErrValidation, services.ErrUnsupportedSource, services.ErrResolution,
		services.ErrCancelled, services.ErrTimeout, services.ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrResolution, "resolve", "extract", "", services.Transient(err))
}

// BuildOptions reduces raw formats to selectable options: progressive video
// and audio-only renditions, one per (kind, resolution or bitrate), video by
// descending height then audio by descending bitrate.
func BuildOptions(formats []RawFormat) []media.FormatOption {
	byKey := make(map[string]media.FormatOption)
	var keys []string
	for _, raw := range formats {
		option, ok := toOption(raw)
		if !ok {
			continue
		}
		key := option.DedupKey()
		existing, seen := byKey[key]
		if !seen {
			keys = append(keys, key)
			byKey[key] = option
			continue
		}
		if preferOption(option, existing) {
			byKey[key] = option
		}
	}

	options := make([]media.FormatOption, 0, len(keys))
	for _, key := range keys {
		options = append(options, byKey[key])
	}
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.Kind != b.Kind {
			return a.Kind == media.KindVideo
		}
		if a.ResolutionOrBitrate != b.ResolutionOrBitrate {
			return a.ResolutionOrBitrate > b.ResolutionOrBitrate
		}
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		return a.ID < b.ID
	})
	labelLanguages(options)
	return options
}

// labelLanguages names the language of each audio option when the source
// offers more than one audio language.
func labelLanguages(options []media.FormatOption) {
	seen := make(map[string]struct{})
	for _, option := range options {
		if option.Kind == media.KindAudio && option.Language != "" {
			seen[option.Language] = struct{}{}
		}
	}
	if len(seen) < 2 {
		return
	}
	for i := range options {
		if options[i].Kind != media.KindAudio || options[i].Language == "" {
			continue
		}
		if name := language.DisplayName(options[i].Language); name != "" {
			options[i].Label += " (" + name + ")"
		}
	}
}

func toOption(raw RawFormat) (media.FormatOption, bool) {
	hasVideo := raw.VCodec != "none" && raw.Height > 0
	hasAudio := raw.ACodec != "none" && raw.ACodec != ""

	var (
		kind  media.Kind
		value int
	)
	switch {
	case hasVideo && hasAudio:
		kind, value = media.KindVideo, raw.Height
	case !hasVideo && hasAudio && (raw.VCodec == "none" || raw.VCodec == ""):
		kind = media.KindAudio
		bitrate := raw.ABR
		if bitrate <= 0 {
			bitrate = raw.TBR
		}
		value = int(math.Round(bitrate))
	default:
		return media.FormatOption{}, false
	}

	var lang string
	if kind == media.KindAudio {
		lang = language.Normalize(raw.Language)
	}

	size := raw.FileSize
	if size <= 0 {
		size = raw.FileSizeApprox
	}
	if size < 0 {
		size = 0
	}
	return media.FormatOption{
		ID:                  raw.ID,
		Kind:                kind,
		Label:               media.Label(kind, value),
		ContainerHint:       raw.Ext,
		ResolutionOrBitrate: value,
		EstimatedSizeBytes:  size,
		RequiresTranscode:   requiresTranscode(kind, raw.Ext),
		Language:            lang,
		SourceURL:           raw.URL,
		Headers:             raw.Headers,
	}, true
}

func requiresTranscode(kind media.Kind, ext string) bool {
	if kind == media.KindAudio {
		return ext != "mp3" && ext != "m4a"
	}
	return ext != "mp4"
}

// preferOption reports whether candidate should replace existing: native
// containers beat ones that need transcoding, then known sizes beat unknown.
func preferOption(candidate, existing media.FormatOption) bool {
	if candidate.RequiresTranscode != existing.RequiresTranscode {
		return !candidate.RequiresTranscode
	}
	return candidate.SizeKnown() && !existing.SizeKnown()
}
