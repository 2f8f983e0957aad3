package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsInstructor reports whether the caller may manage course documents.
func (c *JWTClaims) IsInstructor() bool {
	return c != nil && (c.Role == RoleInstructor || c.Role == RoleAdmin)
}
