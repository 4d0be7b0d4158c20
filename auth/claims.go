package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload issued to a signed-in clippy user.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
