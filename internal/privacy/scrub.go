// Package privacy removes credentials from browsing data before it is sent to
// an external classifier.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// Redacted replaces the value of a sensitive query parameter.
const Redacted = "REDACTED"

var sensitiveParamRegex = regexp.MustCompile(`(?i)(token|secret|passw(or)?d|pwd|api[-_]?key|^key$|^auth|^code$|signature|^sig$|session|^sid$|jwt|credential)`)

// IsSensitiveParam reports whether a query parameter name usually carries a credential.
func IsSensitiveParam(name string) bool {
	return sensitiveParamRegex.MatchString(name)
}

// CleanURL drops userinfo and the fragment from raw and redacts sensitive
// query values. Unparsable input is returned without its query and fragment.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}

	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if IsSensitiveParam(k) {
				q[k] = []string{Redacted}
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Clean trims text and collapses internal runs of whitespace.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
