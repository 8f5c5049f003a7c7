package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// newJSONHandler emits one object per record with ts/level/msg keys, UTC
// RFC 3339 timestamps, lower-case levels and secrets scrubbed from values.
func newJSONHandler(w io.Writer, hc handlerConfig) slog.Handler {
	replace := func(_ []string, attr slog.Attr) slog.Attr {
		switch attr.Key {
		case slog.TimeKey:
			attr.Key = "ts"
			if attr.Value.Kind() == slog.KindTime {
				attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
			}
			return attr
		case slog.LevelKey:
			attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			return attr
		case slog.SourceKey:
			if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
				attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
			}
			return attr
		}
		attr.Value = hc.redact.value(attr.Value)
		return attr
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       hc.level,
		AddSource:   hc.addSource,
		ReplaceAttr: replace,
	})
}
