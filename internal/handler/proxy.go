package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"subpath-proxy/internal/middleware"
	"subpath-proxy/internal/model"
	"subpath-proxy/internal/service"
)

// queryPattern matches the query string of URLs embedded in error messages.
var queryPattern = regexp.MustCompile(`(https?://[^\s"?]+)\?[^\s"]*`)

const copyBufferSize = 32 * 1024

// ProxyHandler serves every path not claimed by another route.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request and streams the (possibly rewritten) response
// back, flushing after every chunk.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Host:          req.Host,
		Path:          req.URL.EscapedPath(),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		ContentLength: req.ContentLength,
		Body:          req.Body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	for key, vals := range resp.Header {
		if middleware.IsHopByHop(key) {
			continue
		}
		for _, v := range vals {
			header.Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already out, so a mid-stream failure can only be
	// logged; the client sees a truncated body.
	if err := h.stream(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) stream(w *echo.Response, body io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			_ = rc.Flush()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrNoBypass) {
		h.logger.Debug("no route", "path", c.Request().URL.Path)
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// sanitizeError drops query strings from URLs in error messages; they may
// carry session tokens or signed parameters.
func sanitizeError(err error) string {
	return queryPattern.ReplaceAllString(err.Error(), "${1}?[REDACTED]")
}
