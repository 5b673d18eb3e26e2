// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents an inbound client request as received.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Host is the inbound Host header value.
	Host string
	// Path is the escaped request path.
	Path          string
	RawQuery      string
	Fragment      string
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// ProxyResponse represents an origin response on its way back to the client.
type ProxyResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}
