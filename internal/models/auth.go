package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload issued by the identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller may act on other users' records.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Teaches reports whether the caller is the instructor named on course.
func (c *JWTClaims) Teaches(course *Course) bool {
	return c != nil && course != nil && c.Role == RoleInstructor &&
		course.Teacher.Email != "" && strings.EqualFold(c.Email, course.Teacher.Email)
}
