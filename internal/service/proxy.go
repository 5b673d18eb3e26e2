// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"subpath-proxy/internal/config"
	"subpath-proxy/internal/htmlrewrite"
	"subpath-proxy/internal/metrics"
	"subpath-proxy/internal/model"
	"subpath-proxy/internal/mount"
)

// ErrNoBypass is returned for requests outside the mount path when no bypass
// target is configured.
var ErrNoBypass = errors.New("request is outside the mount path and no bypass target is configured")

// Sender performs a single upstream round trip without following redirects.
type Sender interface {
	Do(req *http.Request) (*model.ProxyResponse, error)
}

// ProxyService routes inbound requests either to the origin, with rewriting on
// the way back, or unmodified to the bypass target.
type ProxyService struct {
	sender  Sender
	mount   mount.Mount
	bypass  *url.URL
	rewrite config.RewriteConfig
	html    *htmlrewrite.Rewriter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(s Sender, m mount.Mount, cfg *config.Config, logger *slog.Logger, mt *metrics.Metrics) (*ProxyService, error) {
	var bypass *url.URL
	if cfg.Bypass.BaseURL != "" {
		u, err := url.Parse(cfg.Bypass.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse bypass base_url: %w", err)
		}
		bypass = u
	}

	return &ProxyService{
		sender:  s,
		mount:   m,
		bypass:  bypass,
		rewrite: cfg.Rewrite,
		html:    newHTMLRewriter(m),
		logger:  logger.With("component", "proxy_service"),
		metrics: mt,
	}, nil
}

// Forward handles one inbound request. Requests under the mount path go to the
// origin and the response is rewritten; everything else is bypassed.
// The caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	s.logger.Debug("incoming request",
		"method", pr.Method,
		"host", pr.Host,
		"path", pr.Path,
	)

	upstreamPath, ok := s.mount.Match(pr.Path)
	if !ok {
		return s.Bypass(pr)
	}

	req, err := s.BuildUpstreamRequest(pr, upstreamPath)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("proxying to origin", "url", req.URL.String())

	resp, err := s.sender.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to origin: %w", err)
	}

	s.logger.Debug("origin response",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)

	out, err := s.Process(upstreamPath, resp)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return out, nil
}

// BuildUpstreamRequest derives the origin request: https scheme, origin host,
// upstreamPath, the inbound query verbatim, Host set to the origin host and
// Accept-Encoding removed so the body arrives uncompressed.
func (s *ProxyService) BuildUpstreamRequest(pr *model.ProxyRequest, upstreamPath string) (*http.Request, error) {
	target := buildURL("https", s.mount.OriginHost(), upstreamPath, pr.RawQuery, pr.Fragment)

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	req.Header = pr.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Del("Accept-Encoding")
	req.Host = s.mount.OriginHost()
	setContentLength(req, pr)

	return req, nil
}

// Bypass forwards pr to the bypass target exactly as received and returns the
// response untouched.
func (s *ProxyService) Bypass(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if s.bypass == nil {
		return nil, ErrNoBypass
	}
	if s.metrics != nil {
		s.metrics.BypassTotal.Inc()
	}

	target := buildURL(s.bypass.Scheme, s.bypass.Host, pr.Path, pr.RawQuery, pr.Fragment)
	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("build bypass request: %w", err)
	}
	req.Header = pr.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if pr.Host != "" {
		req.Host = pr.Host
	}
	setContentLength(req, pr)

	s.logger.Debug("bypassing request", "url", target)

	resp, err := s.sender.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to bypass target: %w", err)
	}
	return resp, nil
}

// buildURL joins already-escaped parts without re-encoding them.
func buildURL(scheme, host, path, rawQuery, fragment string) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	if fragment != "" {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}

// setContentLength carries the inbound length over; http.NewRequest only infers
// it for in-memory readers.
func setContentLength(req *http.Request, pr *model.ProxyRequest) {
	if pr.Body == nil || pr.Body == http.NoBody {
		req.ContentLength = 0
		req.Body = http.NoBody
		return
	}
	req.ContentLength = pr.ContentLength
}
