package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams contains query parameter names that are redacted from logs,
// matched case-insensitively as substrings.
var sensitiveParams = []string{
	"token",
	"secret",
	"password",
	"key",
	"credential",
	"auth",
}

// sanitizeURL removes sensitive query parameters from URLs before logging.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	for param := range q {
		if isSensitiveParam(param) {
			q.Set(param, "[REDACTED]")
		}
	}

	safe := *u
	safe.RawQuery = q.Encode()
	return safe.String()
}

func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, sensitive := range sensitiveParams {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
