package resolver

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"fetchbot/internal/services"
)

const maxURLLength = 2048

// ValidateURL parses raw and checks it against the scheme allowlist. Failures
// are marked ErrValidation.
func ValidateURL(raw string, allowedSchemes []string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, validationError("empty url")
	}
	if len(raw) > maxURLLength {
		return nil, validationError(fmt.Sprintf("url longer than %d characters", maxURLLength))
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "resolve", "validate", "malformed url", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		return nil, validationError("url has no scheme")
	}
	if !slices.Contains(allowedSchemes, scheme) {
		return nil, validationError(fmt.Sprintf("scheme %q not allowed", scheme))
	}
	if parsed.User != nil {
		return nil, validationError("credentials in url are not allowed")
	}
	if parsed.Hostname() == "" {
		return nil, validationError("url has no host")
	}
	return parsed, nil
}

// NormalizeKey returns the cache key for u: lower-case scheme and host, no
// www./m. prefix, no default port, no fragment, sorted query.
func NormalizeKey(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m."} {
		host = strings.TrimPrefix(host, prefix)
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}
	path := u.EscapedPath()
	if path == "/" {
		path = ""
	}
	key := scheme + "://" + host + path
	if query := u.Query(); len(query) > 0 {
		// Encode sorts by key.
		key += "?" + query.Encode()
	}
	return key
}

func validationError(msg string) error {
	return services.Wrap(services.ErrValidation, "resolve", "validate", msg, nil)
}
