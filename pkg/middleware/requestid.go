package middleware

import (
	"net/http"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/requestid"
)

// RequestID gets the request ID from the x-request-id header or generates
// a unique request ID for each HTTP request and injects it into the
// request's context.Context for consistent access across the application layer.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("x-request-id")
		if reqID == "" {
			reqID = requestid.Generate()
		}

		ctx := requestid.ToContext(r.Context(), reqID)
		w.Header().Set("x-request-id", reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
