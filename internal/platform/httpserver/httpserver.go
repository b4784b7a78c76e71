package httpserver

import (
	"net/http"
	"time"
)

// New builds an *http.Server with conservative timeouts so slow clients
// cannot pin connections open indefinitely.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: the event stream endpoint holds responses open.
		// Handler groups that need a deadline use the timeout middleware.
		IdleTimeout: 120 * time.Second,
	}
}
