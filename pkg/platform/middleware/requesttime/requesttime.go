// Package requesttime pins a single "now" for the lifetime of a request.
package requesttime

import (
	"net/http"
	"time"

	"aidreg/pkg/requestcontext"
)

// Middleware stores the request start time so logs and audit events share one timestamp.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
