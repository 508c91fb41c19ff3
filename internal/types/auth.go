package types

import "github.com/golang-jwt/jwt/v5"

// Claims carries the authenticated user identity inside access tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}
