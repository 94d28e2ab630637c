package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/storefront-webhooks/internal/auth"
	"github.com/josh-kwaku/storefront-webhooks/internal/handler"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

// RequireOperator admits requests bearing a valid HS256 token with the
// operator role.
func RequireOperator(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Warn("admin token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}
			if claims.Role != auth.RoleOperator {
				handler.RespondAppError(w, handler.ErrForbidden, nil)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			ctx = logging.With(ctx, "operator", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
