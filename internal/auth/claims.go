package auth

import "github.com/golang-jwt/jwt/v5"

// Claims identify the operator behind a dashboard session.
type Claims struct {
	jwt.RegisteredClaims

	Username string `json:"username"`
}
