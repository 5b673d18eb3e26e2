package service

import (
	"fmt"
	"io"
	"strings"

	"subpath-proxy/internal/htmlrewrite"
	"subpath-proxy/internal/metrics"
	"subpath-proxy/internal/model"
	"subpath-proxy/internal/mount"
	"subpath-proxy/internal/rewrite"
)

// Paths, relative to the origin, whose bodies are rewritten as plain text.
const (
	sitemapPath = "/sitemap.xml"
	robotsPath  = "/robots.txt"
)

// newHTMLRewriter registers the element attributes that carry links.
func newHTMLRewriter(m mount.Mount) *htmlrewrite.Rewriter {
	fn := func(v string) string { return rewrite.Attribute(m, v) }
	return htmlrewrite.New().
		On("a", "href", fn).
		On("link", "href", fn).
		On("img", "src", fn).
		On("script", "src", fn).
		On("form", "action", fn)
}

// Process runs an origin response through the rewrite pipeline: the Location
// header first, then either a whole-document rewrite for the sitemap and
// robots paths, a streamed attribute rewrite for HTML, or nothing at all.
//
// On error the body of resp has not been replaced and is still owned by the
// caller.
func (s *ProxyService) Process(upstreamPath string, resp *model.ProxyResponse) (*model.ProxyResponse, error) {
	resp = s.rewriteLocation(resp)

	if s.isTextDocument(upstreamPath) {
		return s.rewriteTextDocument(resp)
	}
	if isHTML(resp.Header.Get("Content-Type")) {
		return s.rewriteHTML(resp), nil
	}
	return resp, nil
}

// rewriteLocation returns resp itself when there is nothing to change. Otherwise
// it returns a new envelope with a cloned header; the body is passed through
// unread.
func (s *ProxyService) rewriteLocation(resp *model.ProxyResponse) *model.ProxyResponse {
	location := resp.Header.Get("Location")
	if location == "" {
		return resp
	}
	rewritten := rewrite.Location(s.mount, location)
	if rewritten == location {
		return resp
	}

	s.logger.Debug("rewriting location", "from", location, "to", rewritten)
	s.countRewrite(metrics.RewriteRedirect)

	header := resp.Header.Clone()
	header.Set("Location", rewritten)
	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     header,
		Body:       resp.Body,
	}
}

func (s *ProxyService) isTextDocument(upstreamPath string) bool {
	switch upstreamPath {
	case sitemapPath:
		return !s.rewrite.SkipSitemap
	case robotsPath:
		return !s.rewrite.SkipRobots
	}
	return false
}

// rewriteTextDocument buffers the whole body. The replacement body has a new
// length, so Content-Length is dropped.
func (s *ProxyService) rewriteTextDocument(resp *model.ProxyResponse) (*model.ProxyResponse, error) {
	if resp.Body == nil {
		return resp, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read origin document: %w", err)
	}
	_ = resp.Body.Close()

	s.countRewrite(metrics.RewriteText)

	header := resp.Header.Clone()
	header.Del("Content-Length")
	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(rewrite.TextDocument(s.mount, string(data)))),
	}, nil
}

// rewriteHTML chains the streaming attribute rewriter onto the body.
func (s *ProxyService) rewriteHTML(resp *model.ProxyResponse) *model.ProxyResponse {
	if resp.Body == nil {
		return resp
	}
	s.countRewrite(metrics.RewriteHTML)

	header := resp.Header.Clone()
	header.Del("Content-Length")
	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     header,
		Body:       s.html.Transform(resp.Body),
	}
}

func (s *ProxyService) countRewrite(kind string) {
	if s.metrics != nil {
		s.metrics.RewritesTotal.WithLabelValues(kind).Inc()
	}
}

// isHTML is a case-insensitive substring match, not a MIME parse.
func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
