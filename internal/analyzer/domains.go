package analyzer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// DomainSet is an immutable list of always-dismissed domains.
type DomainSet struct {
	domains []string
}

// NewDomainSet lowercases and copies domains.
func NewDomainSet(domains ...string) DomainSet {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return DomainSet{domains: out}
}

// Domains returns a copy of the set's entries.
func (s DomainSet) Domains() []string {
	return append([]string(nil), s.domains...)
}

// Len returns the number of entries.
func (s DomainSet) Len() int { return len(s.domains) }

// Match reports whether the address's domain equals an entry or is a
// subdomain of one ("m.youtube.com" matches "youtube.com").
func (s DomainSet) Match(rawURL string) bool {
	domain := Domain(rawURL)
	if domain == "" {
		return false
	}
	for _, d := range s.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// IsLocalDev reports whether the address points at localhost or 127.0.0.1,
// with or without a port.
func IsLocalDev(rawURL string) bool {
	switch Hostname(rawURL) {
	case "localhost", "127.0.0.1":
		return true
	}
	return false
}

// PortRules matches "host:port" against glob patterns such as
// "{localhost,127.0.0.1}:3000".
type PortRules struct {
	patterns []string
	globs    []glob.Glob
}

// NewPortRules compiles the patterns.
func NewPortRules(patterns ...string) (PortRules, error) {
	r := PortRules{patterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return PortRules{}, fmt.Errorf("compile port pattern %q: %w", p, err)
		}
		r.globs = append(r.globs, g)
	}
	return r, nil
}

// MustPortRules is NewPortRules for compiled-in patterns.
func MustPortRules(patterns ...string) PortRules {
	r, err := NewPortRules(patterns...)
	if err != nil {
		panic(err)
	}
	return r
}

// Patterns returns a copy of the source patterns.
func (r PortRules) Patterns() []string {
	return append([]string(nil), r.patterns...)
}

// Match reports whether the address's host:port matches any pattern. The
// port defaults to the scheme's well-known port when absent.
func (r PortRules) Match(rawURL string) bool {
	if len(r.globs) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	hp := host + ":" + port
	for _, g := range r.globs {
		if g.Match(hp) {
			return true
		}
	}
	return false
}
