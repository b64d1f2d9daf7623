package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "github.com/Khrees2412/provepoc/pkg/domain-errors"
	"github.com/Khrees2412/provepoc/pkg/platform/httputil"
	"github.com/Khrees2412/provepoc/pkg/requestcontext"
)

// TokenValidator validates an operator bearer token and returns its subject.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// RequireOperator guards operator endpoints behind a bearer token.
// A nil validator rejects every request, so operator routes stay closed when
// no signing key is configured.
func RequireOperator(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || validator == nil {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			operatorID, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithOperatorID(ctx, operatorID)))
		})
	}
}
