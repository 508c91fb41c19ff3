package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Arnonfr/urbanito/config"
)

// OptionalAuthenticate resolves the user identity when a valid bearer token is
// present but never rejects the request. Used on endpoints that serve both
// anonymous and signed-in callers.
func OptionalAuthenticate(logger *slog.Logger, jwtCfg config.JWTConfig) func(next http.Handler) http.Handler {
	secretKey := []byte(jwtCfg.SecretKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tokenString, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parseClaims(tokenString, secretKey)
			if err == nil {
				err = checkClaims(claims, jwtCfg)
			}
			if err != nil {
				logger.DebugContext(ctx, "Ignoring invalid optional token", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
