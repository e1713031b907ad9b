// Package modelclaims provides types for token authorization.

package modelclaims

import "github.com/golang-jwt/jwt"

// Roles encoded in access tokens.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type MyCustomClaims struct {
	UserID string `json:"userID"`
	Role   string `json:"role"`
	jwt.StandardClaims
}
