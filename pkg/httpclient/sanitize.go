package httpclient

import (
	"net/url"
	"strings"
)

// secretParamFragments are substrings of query parameter names that mark
// the value as a secret. Matching is case-insensitive.
var secretParamFragments = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
}

// sanitizeURL redacts secret-bearing query parameters so URLs can be logged.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	changed := false
	for param := range q {
		if isSecretParam(param) {
			q.Set(param, "[REDACTED]")
			changed = true
		}
	}
	if !changed {
		return u.String()
	}

	safe := *u
	safe.RawQuery = q.Encode()
	return safe.String()
}

func isSecretParam(param string) bool {
	lower := strings.ToLower(param)
	for _, fragment := range secretParamFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
