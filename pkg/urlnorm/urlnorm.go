// Package urlnorm reduces page URLs to the form used to decide whether two
// session records describe the same page.
package urlnorm

import (
	"net/url"
	"strings"
)

// Normalize returns scheme://host/path for raw, dropping query string, fragment and
// userinfo. Scheme and host are lowercased. Input that does not parse as an absolute
// URL is returned unchanged.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()
}

// Same reports whether a and b normalize to the same page.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Domain returns the hostname of raw, or raw itself when it cannot be parsed.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.ToLower(u.Hostname())
}
