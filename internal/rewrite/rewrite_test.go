package rewrite

import (
	"strings"
	"testing"

	"subpath-proxy/internal/mount"
)

const (
	originHost    = "origin.example.com"
	legacyHost    = "legacy.example.com"
	canonicalBase = "https://public.example.com/multiplier"
)

func testMount(t *testing.T) mount.Mount {
	t.Helper()
	m, err := mount.New("/multiplier", originHost, []string{legacyHost}, canonicalBase)
	if err != nil {
		t.Fatalf("mount.New() error = %v", err)
	}
	return m
}

func TestAbsolute(t *testing.T) {
	m := testMount(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"origin host", "https://origin.example.com/pricing", canonicalBase + "/pricing"},
		{"legacy host", "https://legacy.example.com/about", canonicalBase + "/about"},
		{"bare origin", "https://origin.example.com", canonicalBase},
		{"query and fragment verbatim", "https://origin.example.com/a?x=1&amp;y=%20#frag", canonicalBase + "/a?x=1&amp;y=%20#frag"},
		{"external host", "https://external.example.com/x", "https://external.example.com/x"},
		{"http scheme untouched", "http://origin.example.com/x", "http://origin.example.com/x"},
		{"protocol-relative untouched", "//origin.example.com/x", "//origin.example.com/x"},
		{"root-relative untouched", "/pricing", "/pricing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Absolute(m, tt.in); got != tt.want {
				t.Errorf("Absolute(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRootRelative(t *testing.T) {
	m := testMount(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"root path", "/", "/multiplier/"},
		{"simple path", "/pricing", "/multiplier/pricing"},
		{"with query", "/search?q=a#top", "/multiplier/search?q=a#top"},
		{"already prefixed", "/multiplier/pricing", "/multiplier/pricing"},
		{"mount path itself", "/multiplier", "/multiplier"},
		{"protocol-relative", "//cdn.example.com/x.js", "//cdn.example.com/x.js"},
		{"document-relative", "pricing", "pricing"},
		{"absolute", "https://origin.example.com/x", "https://origin.example.com/x"},
		{"fragment only", "#top", "#top"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RootRelative(m, tt.in); got != tt.want {
				t.Errorf("RootRelative(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRootRelative_Idempotent(t *testing.T) {
	m := testMount(t)

	for _, in := range []string{"/", "/a", "/a/b?c=d", "/multiplier", "//x", "x", ""} {
		once := RootRelative(m, in)
		twice := RootRelative(m, once)
		if once != twice {
			t.Errorf("RootRelative not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestAttribute(t *testing.T) {
	m := testMount(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"origin absolute", "https://origin.example.com/a", canonicalBase + "/a"},
		{"legacy absolute", "https://legacy.example.com/b", canonicalBase + "/b"},
		{"root-relative", "/c", "/multiplier/c"},
		{"already prefixed", "/multiplier/c", "/multiplier/c"},
		{"external", "https://cdn.example.net/lib.js", "https://cdn.example.net/lib.js"},
		{"protocol-relative", "//cdn.example.net/lib.js", "//cdn.example.net/lib.js"},
		{"mailto", "mailto:hi@example.com", "mailto:hi@example.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Attribute(m, tt.in); got != tt.want {
				t.Errorf("Attribute(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	m := testMount(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative", "/new-page", "/multiplier/new-page"},
		{"relative root", "/", "/multiplier/"},
		{"relative with query", "/login?next=%2Fa", "/multiplier/login?next=%2Fa"},
		{"absolute origin", "https://origin.example.com/new", canonicalBase + "/new"},
		{"absolute origin query fragment", "https://origin.example.com/new?foo=bar#sec", canonicalBase + "/new?foo=bar#sec"},
		{"absolute origin no path", "https://origin.example.com", canonicalBase + "/"},
		{"absolute origin with port", "https://origin.example.com:8443/x", canonicalBase + "/x"},
		{"absolute origin http", "http://origin.example.com/x", canonicalBase + "/x"},
		{"absolute origin escaped path", "https://origin.example.com/a%20b", canonicalBase + "/a%20b"},
		{"external", "https://external.example.com/x", "https://external.example.com/x"},
		{"protocol-relative", "//origin.example.com/x", "//origin.example.com/x"},
		{"document-relative", "next", "next"},
		{"malformed", "https://origin.example.com/%zz", "https://origin.example.com/%zz"},
		{"malformed host", "http://[::1", "http://[::1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Location(m, tt.in); got != tt.want {
				t.Errorf("Location(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Redirects only canonicalize the origin host while markup also canonicalizes
// legacy hosts. This asymmetry is current behavior and is pinned here so a
// change to it is a deliberate decision.
func TestLocation_LegacyHostNotRewritten(t *testing.T) {
	m := testMount(t)

	in := "https://legacy.example.com/page"
	if got := Location(m, in); got != in {
		t.Errorf("Location(%q) = %q, want unchanged", in, got)
	}
	if got := Attribute(m, in); got != canonicalBase+"/page" {
		t.Errorf("Attribute(%q) = %q, want %q", in, got, canonicalBase+"/page")
	}
}

func TestLocation_CanonicalBaseWithoutPath(t *testing.T) {
	m, err := mount.New("/m", originHost, nil, "https://public.example.com")
	if err != nil {
		t.Fatalf("mount.New() error = %v", err)
	}

	got := Location(m, "https://origin.example.com/x?y=1")
	if got != "https://public.example.com/x?y=1" {
		t.Errorf("Location() = %q, want %q", got, "https://public.example.com/x?y=1")
	}
}

func TestTextDocument(t *testing.T) {
	m := testMount(t)

	sitemap := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://origin.example.com/</loc></url>
  <url><loc>https://origin.example.com/pricing</loc></url>
  <url><loc>https://legacy.example.com/old</loc></url>
</urlset>`

	got := TextDocument(m, sitemap)

	if strings.Count(got, canonicalBase) != 2 {
		t.Errorf("expected 2 canonical references, got %d in %q", strings.Count(got, canonicalBase), got)
	}
	if strings.Contains(got, "https://origin.example.com") {
		t.Error("origin host still present after rewrite")
	}
	if !strings.Contains(got, "https://legacy.example.com/old") {
		t.Error("legacy host should not be rewritten in text documents")
	}
	if !strings.Contains(got, "http://www.sitemaps.org/schemas/sitemap/0.9") {
		t.Error("unrelated URL was modified")
	}
}

func TestTextDocument_Robots(t *testing.T) {
	m := testMount(t)

	robots := "User-agent: *\nDisallow: /admin\nSitemap: https://origin.example.com/sitemap.xml\n"
	want := "User-agent: *\nDisallow: /admin\nSitemap: " + canonicalBase + "/sitemap.xml\n"

	if got := TextDocument(m, robots); got != want {
		t.Errorf("TextDocument() = %q, want %q", got, want)
	}
}

func TestTextDocument_NoMatchUnchanged(t *testing.T) {
	m := testMount(t)

	in := "User-agent: *\nAllow: /\n"
	if got := TextDocument(m, in); got != in {
		t.Errorf("TextDocument() = %q, want unchanged", got)
	}
}
