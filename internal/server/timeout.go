package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// TimeoutMiddleware bounds each request's context by timeout. Cancellation is
// cooperative: handlers observe it through the context.
//
// WebSocket upgrades are exempt; the socket handler bounds each turn instead.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 || websocket.IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
