package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestFormatValue(t *testing.T) {
	cases := []struct {
		value slog.Value
		want  string
	}{
		{slog.StringValue("plain"), "plain"},
		{slog.StringValue("two words"), `"two words"`},
		{slog.StringValue(""), `""`},
		{slog.IntValue(42), "42"},
		{slog.BoolValue(true), "true"},
		{slog.DurationValue(1500*time.Millisecond + 37*time.Microsecond), "1.5s"},
		{slog.DurationValue(250 * time.Microsecond), "250µs"},
		{slog.AnyValue(errors.New("connection reset")), `"connection reset"`},
		{slog.AnyValue([]string{"http", "https"}), "http,https"},
	}
	for _, tc := range cases {
		if got := formatValue(tc.value); got != tc.want {
			t.Errorf("formatValue(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestAttrStringDoesNotQuote(t *testing.T) {
	if got := attrString(slog.AnyValue(errors.New("a b"))); got != "a b" {
		t.Fatalf("attrString = %q", got)
	}
}
