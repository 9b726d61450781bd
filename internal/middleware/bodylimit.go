package middleware

import (
	"net/http"

	apperrors "github.com/openclaw/node-relay-go/internal/errors"
	"github.com/openclaw/node-relay-go/internal/httputil"
)

// BodyLimit caps request bodies on the JSON control API. The WebSocket
// endpoints enforce their own frame ceiling instead.
func BodyLimit(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxSize {
				httputil.WriteError(w, apperrors.MessageTooLarge(maxSize))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}
