package logging

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type infoField struct {
	label string
	value string
}

const (
	infoAttrLimit  = 8
	maxErrorLength = 200
)

// infoRank orders the fields an operator scans first on INFO lines. Keys
// not listed keep their emission order after the ranked ones.
var infoRank = func() map[string]int {
	keys := []string{
		FieldAlert, FieldEventType, FieldErrorKind, "error", FieldErrorHint, FieldImpact,
		"status", "title", "format_id", FieldProgressPercent, FieldAttempt, "backoff",
		"stage_duration", "size_bytes", "bytes_written", "limit_bytes", "queue_length", "reason",
	}
	rank := make(map[string]int, len(keys))
	for i, k := range keys {
		rank[k] = i
	}
	return rank
}()

var fieldLabels = map[string]string{
	FieldAlert:           "Alert",
	FieldEventType:       "Event",
	FieldErrorKind:       "Kind",
	FieldErrorHint:       "Hint",
	FieldProgressPercent: "Progress",
	"stage_duration":     "Duration",
	"format_id":          "Format",
}

// selectInfoFields picks at most limit fields for an INFO line. Identity
// keys already shown in the header are dropped; debug-only keys count as
// hidden.
func selectInfoFields(attrs []kv, limit int) ([]infoField, int) {
	candidates := make([]kv, 0, len(attrs))
	hidden := 0
	for _, a := range attrs {
		switch {
		case inHeader(a.key):
		case debugOnly(a.key):
			hidden++
		default:
			candidates = append(candidates, a)
		}
	}
	slices.SortStableFunc(candidates, func(a, b kv) int {
		return rankOf(a.key) - rankOf(b.key)
	})
	if limit > 0 && len(candidates) > limit {
		hidden += len(candidates) - limit
		candidates = candidates[:limit]
	}
	fields := make([]infoField, len(candidates))
	for i, a := range candidates {
		fields[i] = infoField{label: labelFor(a.key), value: humanValue(a.key, a.value)}
	}
	return fields, hidden
}

func rankOf(key string) int {
	if r, ok := infoRank[key]; ok {
		return r
	}
	return len(infoRank)
}

func inHeader(key string) bool {
	return key == "" || key == FieldJobID || key == FieldStage || key == FieldComponent
}

func debugOnly(key string) bool {
	switch key {
	case FieldCorrelationID, FieldUserID, "url", "source_url", "command":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

// humanValue renders sizes, durations, percentages and booleans for people.
func humanValue(key string, v slog.Value) string {
	v = v.Resolve()
	switch {
	case strings.HasSuffix(key, "_bytes") && v.Kind() == slog.KindInt64 && v.Int64() >= 0:
		return humanize.IBytes(uint64(v.Int64()))
	case strings.HasSuffix(key, "_bytes") && v.Kind() == slog.KindUint64:
		return humanize.IBytes(v.Uint64())
	case strings.HasSuffix(key, "_percent") && v.Kind() == slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 1, 64) + "%"
	case v.Kind() == slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	s := formatValue(v)
	if key == "error" && len(s) > maxErrorLength {
		s = s[:maxErrorLength] + "…"
	}
	return s
}

// labelFor maps size_bytes to "Size Bytes" unless a fixed label exists.
func labelFor(key string) string {
	if label, ok := fieldLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		w = strings.ToLower(w)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func attrValue(attrs []kv, key string) string {
	for _, a := range attrs {
		if a.key == key {
			return attrString(a.value)
		}
	}
	return ""
}
