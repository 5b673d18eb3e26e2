package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are headers that apply to a single connection and are never
// forwarded by proxies.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var hopByHopSet = func() map[string]bool {
	set := make(map[string]bool, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		set[http.CanonicalHeaderKey(h)] = true
	}
	return set
}()

// IsHopByHop reports whether the header name is connection-scoped.
func IsHopByHop(name string) bool {
	return hopByHopSet[http.CanonicalHeaderKey(name)]
}

// StripHopByHop returns an Echo middleware that removes hop-by-hop headers from
// the incoming request, including any listed in its Connection header, before
// it is forwarded. Response headers are left alone; the mirrored site decides
// its own framing and security policy.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			for _, v := range h.Values("Connection") {
				for _, name := range strings.Split(v, ",") {
					h.Del(strings.TrimSpace(name))
				}
			}
			for _, name := range hopByHopHeaders {
				h.Del(name)
			}
			return next(c)
		}
	}
}
