package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

const redactedMarker = "<redacted>"

// botTokenPattern matches Bot API tokens, which net/http errors echo back
// inside request URLs.
var botTokenPattern = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

// redactor scrubs configured secrets and anything shaped like a bot token.
type redactor struct {
	replacer *strings.Replacer
}

func newRedactor(secrets []string) *redactor {
	var pairs []string
	for _, secret := range secrets {
		if secret = strings.TrimSpace(secret); len(secret) >= 8 {
			pairs = append(pairs, secret, redactedMarker)
		}
	}
	r := &redactor{}
	if len(pairs) > 0 {
		r.replacer = strings.NewReplacer(pairs...)
	}
	return r
}

func (r *redactor) scrub(s string) string {
	if r == nil {
		return s
	}
	if r.replacer != nil {
		s = r.replacer.Replace(s)
	}
	return botTokenPattern.ReplaceAllString(s, redactedMarker)
}

// value returns v with string and error payloads scrubbed.
func (r *redactor) value(v slog.Value) slog.Value {
	if r == nil {
		return v
	}
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.StringValue(r.scrub(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.StringValue(r.scrub(err.Error()))
		}
		if s, ok := v.Any().(string); ok {
			return slog.StringValue(r.scrub(s))
		}
	}
	return v
}
