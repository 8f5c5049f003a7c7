package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Normalize reduces a BCP 47 tag or ISO 639 code to its base language in
// the shortest form ("en-US" and "eng" both become "en"). Empty, undetermined
// or unparseable input yields "".
func Normalize(code string) string {
	base, ok := parseBase(code)
	if !ok {
		return ""
	}
	return base.String()
}

// DisplayName returns the English name of the base language of code, or ""
// when it is not recognized.
func DisplayName(code string) string {
	base, ok := parseBase(code)
	if !ok {
		return ""
	}
	return display.English.Languages().Name(base)
}

func parseBase(code string) (xlanguage.Base, bool) {
	code = strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if code == "" {
		return xlanguage.Base{}, false
	}
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return xlanguage.Base{}, false
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No || base.String() == "und" {
		return xlanguage.Base{}, false
	}
	return base, true
}
