// Package rewrite holds the URL rewrite rules applied to everything the origin
// sends back: markup attributes, redirect headers and plain-text documents.
// All functions are pure.
package rewrite

import (
	"net/url"
	"strings"

	"subpath-proxy/internal/mount"
)

// Absolute replaces a leading "https://<host>" with the canonical base when host
// is the origin host or a legacy host. Hosts are tried in priority order and the
// first match wins. The remainder of s is copied verbatim.
func Absolute(m mount.Mount, s string) string {
	if out, ok := absolute(m, s); ok {
		return out
	}
	return s
}

func absolute(m mount.Mount, s string) (string, bool) {
	for _, host := range m.RewriteHosts() {
		prefix := "https://" + host
		if strings.HasPrefix(s, prefix) {
			return m.CanonicalBase() + s[len(prefix):], true
		}
	}
	return s, false
}

// RootRelative prefixes a root-relative path with the mount path. Protocol-relative
// URLs and paths already under the mount path are returned unchanged, which makes
// the rule idempotent.
func RootRelative(m mount.Mount, s string) string {
	if !isRootRelative(s) || strings.HasPrefix(s, m.Path()) {
		return s
	}
	return m.Path() + s
}

// Attribute applies Absolute and, only when that did not match, RootRelative.
// Empty values are left alone.
func Attribute(m mount.Mount, s string) string {
	if s == "" {
		return s
	}
	if out, ok := absolute(m, s); ok {
		return out
	}
	return RootRelative(m, s)
}

// Location rewrites a redirect target. Root-relative targets get the mount path
// prepended. Absolute targets are rewritten onto the canonical base only when
// their hostname is exactly the origin host; legacy hosts are not matched here.
// Anything else, including values that fail to parse, is returned unchanged.
func Location(m mount.Mount, location string) string {
	if location == "" {
		return location
	}
	if isRootRelative(location) {
		return m.Path() + location
	}

	loc, err := url.Parse(location)
	if err != nil || loc.Scheme == "" || loc.Host == "" {
		return location
	}
	if !strings.EqualFold(loc.Hostname(), m.OriginHost()) {
		return location
	}
	base, err := url.Parse(m.CanonicalBase())
	if err != nil {
		return location
	}

	path := loc.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(base.Scheme)
	b.WriteString("://")
	b.WriteString(base.Host)
	b.WriteString(strings.TrimSuffix(base.EscapedPath(), "/"))
	b.WriteString(path)
	if loc.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(loc.RawQuery)
	}
	if loc.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(loc.EscapedFragment())
	}
	return b.String()
}

// TextDocument replaces every literal occurrence of "https://<origin host>" in
// body with the canonical base. Legacy hosts are not touched.
func TextDocument(m mount.Mount, body string) string {
	return strings.ReplaceAll(body, "https://"+m.OriginHost(), m.CanonicalBase())
}

func isRootRelative(s string) bool {
	return strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//")
}
