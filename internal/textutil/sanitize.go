package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxFileNameBytes keeps names under common filesystem limits once an
// extension is appended.
const maxFileNameBytes = 200

var (
	decorativeSuffix = regexp.MustCompile(`(?i)\s+(official video|lyrics|audio|video)\b`)
	bracketChars     = regexp.MustCompile(`[\[\](){}]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName cleans a media title for use as a filename. Decorative
// suffix words ("official video", "lyrics", "audio", "video") and brackets are
// removed, whitespace is collapsed, unsafe characters are replaced, and the
// result is truncated on a rune boundary. Returns "" for input with nothing
// usable left.
func SanitizeFileName(name string) string {
	name = normalizeText(name)
	name = bracketChars.ReplaceAllString(name, "")
	name = decorativeSuffix.ReplaceAllString(name, "")
	name = fileNameReplacer.Replace(name)
	name = whitespaceRun.ReplaceAllString(name, " ")
	name = strings.Trim(strings.TrimSpace(name), ".-")
	return truncateBytes(name, maxFileNameBytes)
}

// SanitizeToken converts a string to a lowercase ASCII filesystem-safe token.
// Accents are folded ("Café" becomes "cafe"), digits and hyphens/underscores
// are kept, everything else becomes an underscore. Returns "unknown" for empty
// input.
func SanitizeToken(value string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err == nil {
		value = folded
	}
	value = strings.TrimSpace(value)
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return truncateBytes(out, 64)
}

func normalizeText(value string) string {
	cleaned, _, err := transform.String(transform.Chain(norm.NFC, runes.Remove(runes.Predicate(isControlNotSpace))), value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(cleaned)
}

func isControlNotSpace(r rune) bool {
	return unicode.IsControl(r) && !unicode.IsSpace(r)
}

func truncateBytes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return strings.TrimSpace(value[:cut])
}
