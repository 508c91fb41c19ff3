package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Arnonfr/urbanito/config"
	"github.com/Arnonfr/urbanito/internal/api"
	"github.com/Arnonfr/urbanito/internal/types"
)

type contextKey string

const UserIDKey contextKey = "userID"

// bearerToken extracts the token from an Authorization header. The second
// return is false when the header is absent or not in Bearer form.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

// parseClaims validates the token signature against the shared secret and
// returns the embedded claims.
func parseClaims(tokenString string, secretKey []byte) (*types.Claims, error) {
	claims := &types.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// checkClaims enforces expiry, issuer and audience beyond signature validity.
func checkClaims(claims *types.Claims, jwtCfg config.JWTConfig) error {
	if claims.ExpiresAt == nil || time.Now().Unix() > claims.ExpiresAt.Unix() {
		return jwt.ErrTokenExpired
	}
	if claims.Issuer != jwtCfg.Issuer {
		return fmt.Errorf("issuer %q not accepted", claims.Issuer)
	}
	if jwtCfg.Audience != "" && !api.VerifyAudience(claims.Audience, jwtCfg.Audience) {
		return errors.New("audience not accepted")
	}
	return nil
}

// Authenticate validates JWT access tokens and stores the user ID in the
// request context. Routes mounted outside the authenticated group never pass
// through it.
func Authenticate(logger *slog.Logger, jwtCfg config.JWTConfig) func(next http.Handler) http.Handler {
	secretKey := []byte(jwtCfg.SecretKey)
	if len(secretKey) == 0 {
		logger.Error("FATAL: JWT Secret Key is not configured!")
		panic("JWT Secret Key cannot be empty")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			tokenString, ok := bearerToken(r)
			if !ok {
				l.WarnContext(ctx, "Missing or malformed Authorization header")
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}

			claims, err := parseClaims(tokenString, secretKey)
			if err != nil {
				l.WarnContext(ctx, "Token rejected", slog.Any("error", err))
				errMsg := "Invalid or expired token"
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					errMsg = "Token has expired"
				case errors.Is(err, jwt.ErrTokenMalformed):
					errMsg = "Malformed token"
				case errors.Is(err, jwt.ErrSignatureInvalid):
					errMsg = "Invalid token signature"
				}
				api.ErrorResponse(w, r, http.StatusUnauthorized, errMsg)
				return
			}

			if err := checkClaims(claims, jwtCfg); err != nil {
				l.WarnContext(ctx, "Token claims rejected", slog.Any("error", err))
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext returns the authenticated user's ID, if present.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}
