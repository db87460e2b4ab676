// Package security is the admission layer: every call passes through
// domain validation, per-team rate limiting, and tenant isolation checks
// before it reaches the router. The layer fails closed; a call that
// cannot be validated never touches the pool or a session.
package security

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// DomainMatcher validates navigation targets against the configured
// allowlist. Three pattern kinds are supported:
//
//   - exact:    "example.com" matches only that host
//   - wildcard: "*.example.com" matches subdomains, not the bare domain
//   - global:   "*" matches every host
//
// data: URLs carry no host and pass unconditionally.
type DomainMatcher struct {
	allowAll bool
	exact    map[string]bool
	globs    []compiledPattern
}

type compiledPattern struct {
	raw string
	g   glob.Glob
}

// NewDomainMatcher compiles the allowlist. Invalid patterns fail the
// whole list, so a bad runtime update never half-applies.
func NewDomainMatcher(allowed []string) (*DomainMatcher, error) {
	m := &DomainMatcher{exact: make(map[string]bool)}

	for _, raw := range allowed {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		if pattern == "" {
			return nil, fmt.Errorf("empty domain pattern in allowlist")
		}
		if pattern == "*" {
			m.allowAll = true
			continue
		}
		if strings.ContainsAny(pattern, "*?[") {
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid domain pattern %q: %w", pattern, err)
			}
			m.globs = append(m.globs, compiledPattern{raw: pattern, g: g})
			continue
		}
		m.exact[pattern] = true
	}

	return m, nil
}

// Allows reports whether the host matches the allowlist.
func (m *DomainMatcher) Allows(host string) bool {
	if m.allowAll {
		return true
	}
	host = strings.ToLower(host)
	if m.exact[host] {
		return true
	}
	for _, pattern := range m.globs {
		if pattern.g.Match(host) {
			return true
		}
	}
	return false
}

// CheckURL validates a navigation target. Malformed URLs are
// INVALID_INPUT; a well-formed URL outside the allowlist is
// DOMAIN_NOT_ALLOWED.
func (m *DomainMatcher) CheckURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return protocol.NewInvalidInput(fmt.Sprintf("invalid url %q: %v", rawURL, err))
	}
	if parsed.Scheme == "data" {
		return nil
	}

	host := parsed.Hostname()
	if host == "" {
		return protocol.NewInvalidInput(fmt.Sprintf("url %q has no host", rawURL))
	}
	if !m.Allows(host) {
		return protocol.NewDomainNotAllowed(host)
	}
	return nil
}
