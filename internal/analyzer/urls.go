package analyzer

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeURL strips the fragment and query so that two addresses that
// differ only in those parts compare equal. Unparseable input is cut at the
// first '#' and '?' instead.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		s, _, _ := strings.Cut(rawURL, "#")
		s, _, _ = strings.Cut(s, "?")
		return s
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String()
}

// IsHTTP reports whether rawURL is an http or https address with a host.
// Everything else (empty, about:, chrome:, file:, ...) is left alone by the
// consolidator.
func IsHTTP(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}

// Hostname returns the lowercase ASCII hostname of rawURL without port.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return host
}

// Domain returns the hostname with one leading "www." label removed.
func Domain(rawURL string) string {
	return strings.TrimPrefix(Hostname(rawURL), "www.")
}
