package htmlrewrite

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func prefixer(prefix string) RewriteFunc {
	return func(v string) string {
		if strings.HasPrefix(v, "/") && !strings.HasPrefix(v, prefix) {
			return prefix + v
		}
		return v
	}
}

func linkRewriter() *Rewriter {
	fn := prefixer("/m")
	return New().
		On("a", "href", fn).
		On("link", "href", fn).
		On("img", "src", fn).
		On("script", "src", fn).
		On("form", "action", fn)
}

func rewriteString(t *testing.T, rw *Rewriter, in string) string {
	t.Helper()
	var out bytes.Buffer
	if err := rw.Copy(&out, strings.NewReader(in)); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	return out.String()
}

func TestCopy_RewritesRegisteredAttributes(t *testing.T) {
	in := `<!DOCTYPE html><html><head>
<link rel="stylesheet" href="/style.css">
<script src="/app.js"></script>
</head><body>
<a href="/pricing">Pricing</a>
<img src="/logo.png" alt="logo">
<form action="/submit" method="post"></form>
</body></html>`

	out := rewriteString(t, linkRewriter(), in)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}

	tests := []struct {
		selector string
		attr     string
		want     string
	}{
		{"link", "href", "/m/style.css"},
		{"script", "src", "/m/app.js"},
		{"a", "href", "/m/pricing"},
		{"img", "src", "/m/logo.png"},
		{"form", "action", "/m/submit"},
		{"img", "alt", "logo"},
		{"form", "method", "post"},
	}
	for _, tt := range tests {
		t.Run(tt.selector+"/"+tt.attr, func(t *testing.T) {
			got, _ := doc.Find(tt.selector).Attr(tt.attr)
			if got != tt.want {
				t.Errorf("%s[%s] = %q, want %q", tt.selector, tt.attr, got, tt.want)
			}
		})
	}
}

func TestCopy_PreservesUntouchedBytes(t *testing.T) {
	in := "<!-- keep <a href=\"/x\"> in comments -->\n" +
		"<DIV Class=x data-href='/no'>Text &amp; entities &nbsp; </DIV>\n" +
		"<script>var s = '<a href=\"/inline\">';</script>\n" +
		"<textarea><a href=\"/raw\"></textarea>\n" +
		"<a href=\"https://external.example.com/\">ext</a><a name=top></a>"

	if out := rewriteString(t, linkRewriter(), in); out != in {
		t.Errorf("output differs from input:\n got: %q\nwant: %q", out, in)
	}
}

func TestCopy_OnlyAttributeValueChanges(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"double quoted", `<a class="nav" href="/a" id=x>`, `<a class="nav" href="/m/a" id=x>`},
		{"single quoted", `<a href='/a'>`, `<a href='/m/a'>`},
		{"unquoted", `<a href=/a>`, `<a href=/m/a>`},
		{"spaces around equals", `<a href = "/a" >`, `<a href = "/m/a" >`},
		{"upper-case names", `<A HREF="/a">`, `<A HREF="/m/a">`},
		{"self-closing", `<img src="/i.png"/>`, `<img src="/m/i.png"/>`},
		{"newline separated", "<img\n  src=\"/i.png\"\n  alt=\"\">", "<img\n  src=\"/m/i.png\"\n  alt=\"\">"},
		{"first duplicate wins", `<a href="/a" href="/b">`, `<a href="/m/a" href="/b">`},
		{"empty value skipped", `<a href="">`, `<a href="">`},
		{"valueless skipped", `<a href>`, `<a href>`},
		{"other attribute named like target", `<a data-href="/a" href="/b">`, `<a data-href="/a" href="/m/b">`},
		{"unregistered element", `<iframe src="/a">`, `<iframe src="/a">`},
		{"wrong attribute", `<img href="/a">`, `<img href="/a">`},
		{"already prefixed", `<a href="/m/a">`, `<a href="/m/a">`},
	}

	rw := linkRewriter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewriteString(t, rw, tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCopy_EscapesQuoteInReplacement(t *testing.T) {
	rw := New().On("a", "href", func(string) string { return `/say"hi"` })

	got := rewriteString(t, rw, `<a href="/x">`)
	want := `<a href="/say&#34;hi&#34;">`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCopy_MultipleAttributesOnOneElement(t *testing.T) {
	rw := New().
		On("a", "href", prefixer("/m")).
		On("a", "ping", prefixer("/m"))

	got := rewriteString(t, rw, `<a ping="/track" href="/page">`)
	want := `<a ping="/m/track" href="/m/page">`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCopy_EmptyAndTruncatedInput(t *testing.T) {
	rw := linkRewriter()

	for _, in := range []string{"", "plain text", "<a href=\"/x", "<p>unclosed"} {
		if got := rewriteString(t, rw, in); got != in {
			t.Errorf("Copy(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestCopy_LargeDocument(t *testing.T) {
	var in, want strings.Builder
	for j := 0; j < 5000; j++ {
		in.WriteString(`<li><a href="/item">item</a></li>`)
		want.WriteString(`<li><a href="/m/item">item</a></li>`)
	}

	if got := rewriteString(t, linkRewriter(), in.String()); got != want.String() {
		t.Error("large document not rewritten consistently")
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("write failed") }

func TestCopy_WriteError(t *testing.T) {
	err := linkRewriter().Copy(errWriter{}, strings.NewReader(`<a href="/x">`))
	if err == nil {
		t.Fatal("Copy() expected error, got nil")
	}
}

func TestTransform_StreamsBeforeInputEnds(t *testing.T) {
	src, feed := io.Pipe()
	out := linkRewriter().Transform(src)
	defer func() { _ = out.Close() }()

	go func() {
		_, _ = feed.Write([]byte(`<html><body><a href="/first">one</a>`))
		// The rest of the document is held back until the test has seen the
		// first rewritten link.
	}()

	got := make(chan string, 1)
	go func() {
		var acc []byte
		buf := make([]byte, 64)
		for {
			n, err := out.Read(buf)
			acc = append(acc, buf[:n]...)
			if bytes.Contains(acc, []byte(`href="/m/first"`)) {
				got <- string(acc)
				return
			}
			if err != nil {
				got <- string(acc)
				return
			}
		}
	}()

	select {
	case s := <-got:
		if !strings.Contains(s, `<a href="/m/first">`) {
			t.Errorf("partial output = %q, want rewritten first link", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no output produced before end of input")
	}

	_ = feed.Close()
}

func TestTransform_FullDocument(t *testing.T) {
	in := `<a href="/a">a</a><img src="https://cdn.example.com/x.png">`
	out := linkRewriter().Transform(io.NopCloser(strings.NewReader(in)))
	defer func() { _ = out.Close() }()

	body, err := io.ReadAll(out)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := `<a href="/m/a">a</a><img src="https://cdn.example.com/x.png">`
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

type trackingCloser struct {
	io.Reader
	closed chan struct{}
}

func (c *trackingCloser) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func TestTransform_CloseAbandonsPass(t *testing.T) {
	src, feed := io.Pipe()
	defer func() { _ = feed.Close() }()
	tc := &trackingCloser{Reader: src, closed: make(chan struct{})}

	out := linkRewriter().Transform(tc)
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-tc.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("source was not closed")
	}
}

type failingReader struct{ data []byte }

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, errors.New("connection reset")
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestTransform_PropagatesSourceError(t *testing.T) {
	src := io.NopCloser(&failingReader{data: []byte(`<a href="/a">`)})
	out := linkRewriter().Transform(src)
	defer func() { _ = out.Close() }()

	_, err := io.ReadAll(out)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("ReadAll() error = %v, want connection reset", err)
	}
}
