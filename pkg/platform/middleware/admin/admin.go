// Package admin guards operator-only routes.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"stagegate/pkg/platform/httputil"
	"stagegate/pkg/requestcontext"
)

const HeaderOperatorToken = "X-Operator-Token"

// RequireOperatorToken rejects requests that do not present expectedToken in
// the X-Operator-Token header or as a bearer token. An empty expectedToken
// disables the check.
func RequireOperatorToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expectedToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderOperatorToken)
			if token == "" {
				token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "operator token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:   "UNAUTHORIZED",
					Message: "operator token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
