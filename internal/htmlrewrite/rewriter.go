// Package htmlrewrite rewrites selected element attributes in an HTML stream.
//
// The document is tokenized in a single forward pass with golang.org/x/net/html
// and every token is written back from its raw bytes. Only the value of a
// registered attribute on a registered element is ever changed; all other
// markup, text, comments and attributes come out byte-identical. Memory use is
// bounded by the largest single token, not by the document.
package htmlrewrite

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// RewriteFunc maps an attribute value to its replacement. Returning the input
// unchanged leaves the tag untouched.
type RewriteFunc func(value string) string

type handler struct {
	attr string
	fn   RewriteFunc
}

// Rewriter holds the (element, attribute) pairs to rewrite. Register pairs with
// On before the first Copy or Transform; after that a Rewriter is safe for
// concurrent use.
type Rewriter struct {
	handlers map[string][]handler
}

// New returns an empty Rewriter.
func New() *Rewriter {
	return &Rewriter{handlers: make(map[string][]handler)}
}

// On registers fn for attribute attr of element tag. Tag and attribute names
// are matched case-insensitively.
func (rw *Rewriter) On(tag, attr string, fn RewriteFunc) *Rewriter {
	tag = strings.ToLower(tag)
	rw.handlers[tag] = append(rw.handlers[tag], handler{attr: strings.ToLower(attr), fn: fn})
	return rw
}

// Copy streams src to dst, rewriting registered attributes on the way.
func (rw *Rewriter) Copy(dst io.Writer, src io.Reader) error {
	z := html.NewTokenizer(src)
	var scratch []byte
	for {
		tt := z.Next()
		raw := z.Raw()

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			// Raw is only valid until the next call to Next, and the rewrite may
			// need to build a new tag, so work on a private copy.
			scratch = append(scratch[:0], raw...)
			raw = rw.rewriteTag(scratch)
		}

		if len(raw) > 0 {
			if _, err := dst.Write(raw); err != nil {
				return err
			}
		}

		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		}
	}
}

// Transform returns a reader that yields src rewritten. The pass runs in its own
// goroutine and produces output as input arrives. Closing the returned reader
// abandons the pass and closes src.
func (rw *Rewriter) Transform(src io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := rw.Copy(pw, src)
		_ = src.Close()
		_ = pw.CloseWithError(err)
	}()
	return &transformReader{PipeReader: pr, src: src}
}

type transformReader struct {
	*io.PipeReader
	src io.Closer
}

// Close unblocks a pass that is waiting on src as well as one waiting on the
// reader.
func (t *transformReader) Close() error {
	_ = t.src.Close()
	return t.PipeReader.Close()
}

func (rw *Rewriter) rewriteTag(raw []byte) []byte {
	name := tagName(raw)
	hs := rw.handlers[name]
	if len(hs) == 0 {
		return raw
	}
	for _, h := range hs {
		a, ok := findAttr(raw, h.attr)
		if !ok || !a.hasValue {
			continue
		}
		value := string(raw[a.valStart:a.valEnd])
		if value == "" {
			continue
		}
		rewritten := h.fn(value)
		if rewritten == value {
			continue
		}
		raw = splice(raw, a, rewritten)
	}
	return raw
}

func splice(raw []byte, a attrSpan, value string) []byte {
	if a.quote != 0 {
		value = strings.ReplaceAll(value, string(a.quote), quoteEntity(a.quote))
	}
	out := make([]byte, 0, len(raw)-(a.valEnd-a.valStart)+len(value))
	out = append(out, raw[:a.valStart]...)
	out = append(out, value...)
	return append(out, raw[a.valEnd:]...)
}

func quoteEntity(q byte) string {
	if q == '\'' {
		return "&#39;"
	}
	return "&#34;"
}
