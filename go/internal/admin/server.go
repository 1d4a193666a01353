package admin

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// NewServer wraps h with CORS and serves it over HTTP/1.1 and cleartext
// HTTP/2. Websocket upgrades stay on HTTP/1.1.
func NewServer(addr string, h http.Handler, allowedOrigins []string) *http.Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(c.Handler(h), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
