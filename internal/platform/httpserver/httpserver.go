// Package httpserver constructs the registry's listeners (public API and
// the metrics endpoint).
package httpserver

import (
	"net/http"
	"time"
)

// New wraps handler in a server for addr. Header reads are bounded so a
// stalled client cannot pin a connection; per-request timeouts are the
// router's responsibility.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
