package textutil

import (
	"strings"

	"fetchbot/internal/media"
)

// NamingTemplates are the filename templates a user can cycle through.
var NamingTemplates = []string{
	"{title}",
	"{title} - {uploader}",
	"{playlist} - {title}",
}

// DefaultNamingTemplate is used until a user picks another.
const DefaultNamingTemplate = "{title}"

// NextTemplate returns the template after current, wrapping around. Unknown
// templates restart the cycle.
func NextTemplate(current string) string {
	for i, tmpl := range NamingTemplates {
		if tmpl == current {
			return NamingTemplates[(i+1)%len(NamingTemplates)]
		}
	}
	return NamingTemplates[0]
}

// RenderName fills template from info and sanitizes the result. Placeholders
// without a value are dropped together with their separator, and an empty
// result falls back to the title.
func RenderName(template string, info media.Info) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultNamingTemplate
	}
	values := map[string]string{
		"{title}":    strings.TrimSpace(info.Title),
		"{uploader}": strings.TrimSpace(info.Uploader),
		"{playlist}": strings.TrimSpace(info.Playlist),
	}

	parts := strings.Split(template, " - ")
	rendered := make([]string, 0, len(parts))
	for _, part := range parts {
		for placeholder, value := range values {
			part = strings.ReplaceAll(part, placeholder, value)
		}
		if part = strings.TrimSpace(part); part != "" {
			rendered = append(rendered, part)
		}
	}

	name := SanitizeFileName(strings.Join(rendered, " - "))
	if name == "" {
		name = SanitizeFileName(info.DisplayTitle())
	}
	if name == "" {
		name = "media"
	}
	return name
}
