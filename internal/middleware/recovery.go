package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/storefront-webhooks/internal/handler"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

// Recovery turns a panic into a 500 so the provider retries the delivery.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log := logging.FromContext(r.Context())
				log.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
