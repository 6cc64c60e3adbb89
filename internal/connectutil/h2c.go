package connectutil

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	// Each open WatchEvents call holds one stream.
	maxStreamsPerConn = 250
	maxFrameSize      = 1 << 20
	idleTimeout       = 5 * time.Minute
)

// H2CHandler serves HTTP/2 without TLS so event streams and unary calls
// share one connection.
func H2CHandler(handler http.Handler) http.Handler {
	return h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams: maxStreamsPerConn,
		MaxReadFrameSize:     maxFrameSize,
		IdleTimeout:          idleTimeout,
	})
}
