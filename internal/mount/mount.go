// Package mount describes where the proxied site lives on the public host and
// decides which inbound paths belong to it.
package mount

import (
	"fmt"
	"net/url"
	"strings"
)

// Mount is the immutable, process-wide description of a single mount point.
// The zero value is not usable; construct it with New.
type Mount struct {
	path          string
	originHost    string
	legacyHosts   []string
	canonicalBase string
}

// New validates its arguments and returns a Mount.
//
// path must start with "/" and carry no trailing slash. canonicalBase must be an
// absolute http(s) URL without a trailing slash. Duplicate legacy hosts, and a
// legacy host equal to originHost, are dropped.
func New(path, originHost string, legacyHosts []string, canonicalBase string) (Mount, error) {
	if path == "" || path[0] != '/' {
		return Mount{}, fmt.Errorf("mount path must start with '/'; got %q", path)
	}
	if path == "/" || strings.HasSuffix(path, "/") {
		return Mount{}, fmt.Errorf("mount path must not end with '/'; got %q", path)
	}
	if err := validateHost(originHost); err != nil {
		return Mount{}, fmt.Errorf("origin host: %w", err)
	}

	legacy := make([]string, 0, len(legacyHosts))
	seen := map[string]bool{strings.ToLower(originHost): true}
	for _, h := range legacyHosts {
		if err := validateHost(h); err != nil {
			return Mount{}, fmt.Errorf("legacy host: %w", err)
		}
		key := strings.ToLower(h)
		if seen[key] {
			continue
		}
		seen[key] = true
		legacy = append(legacy, h)
	}

	if strings.HasSuffix(canonicalBase, "/") {
		return Mount{}, fmt.Errorf("canonical base must not end with '/'; got %q", canonicalBase)
	}
	u, err := url.Parse(canonicalBase)
	if err != nil {
		return Mount{}, fmt.Errorf("canonical base is not a valid URL: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return Mount{}, fmt.Errorf("canonical base must be an absolute http(s) URL; got %q", canonicalBase)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Mount{}, fmt.Errorf("canonical base must not carry a query or fragment; got %q", canonicalBase)
	}

	return Mount{
		path:          path,
		originHost:    originHost,
		legacyHosts:   legacy,
		canonicalBase: canonicalBase,
	}, nil
}

func validateHost(h string) error {
	if h == "" {
		return fmt.Errorf("must not be empty")
	}
	if strings.Contains(h, "://") || strings.ContainsAny(h, "/?# ") {
		return fmt.Errorf("must be a bare hostname; got %q", h)
	}
	return nil
}

// Path returns the mount path, e.g. "/multiplier".
func (m Mount) Path() string { return m.path }

// OriginHost returns the upstream hostname.
func (m Mount) OriginHost() string { return m.originHost }

// LegacyHosts returns a copy of the additional hostnames whose absolute URLs
// are canonicalized.
func (m Mount) LegacyHosts() []string {
	out := make([]string, len(m.legacyHosts))
	copy(out, m.legacyHosts)
	return out
}

// CanonicalBase returns the public URL prefix that replaces origin references.
func (m Mount) CanonicalBase() string { return m.canonicalBase }

// RewriteHosts returns the hosts whose absolute URLs are rewritten in markup,
// in priority order: the origin host first, then legacy hosts as configured.
func (m Mount) RewriteHosts() []string {
	out := make([]string, 0, 1+len(m.legacyHosts))
	out = append(out, m.originHost)
	return append(out, m.legacyHosts...)
}

// Match reports whether path falls under the mount and, if so, returns the
// equivalent upstream path. Sibling paths that merely share the prefix
// ("/multiplierX", "/multiplier-test") do not match.
func (m Mount) Match(path string) (string, bool) {
	if !strings.HasPrefix(path, m.path) {
		return "", false
	}
	rest := path[len(m.path):]
	if rest == "" {
		return "/", true
	}
	if rest[0] != '/' {
		return "", false
	}
	return rest, true
}
