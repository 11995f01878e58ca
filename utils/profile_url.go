package utils

import (
	"errors"
	"net/url"
	"strings"
)

var ErrEmptyProfileURL = errors.New("empty profile url")

// NormalizeProfileURL canonicalizes a LinkedIn profile URL so that the same
// profile reported by different sources compares equal.
func NormalizeProfileURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyProfileURL
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", ErrEmptyProfileURL
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	if strings.HasSuffix(host, "linkedin.com") {
		host = "www.linkedin.com"
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	if strings.HasPrefix(strings.ToLower(path), "/in/") {
		path = strings.ToLower(path)
	}

	return "https://" + host + path, nil
}

// MustNormalizeProfileURL returns the normalized URL or the trimmed input when it cannot be parsed
func MustNormalizeProfileURL(raw string) string {
	n, err := NormalizeProfileURL(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return n
}
