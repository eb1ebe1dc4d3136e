// Package protocol describes how endpoint groups contribute routes to the
// HTTP server.
package protocol

import "net/http"

// EndpointRoute is one method+path pair. Path uses chi patterns.
type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named group of routes registered together.
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}
