package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens. StudentID is set
// only for student accounts and ties the actor to their student record.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	StudentID string   `json:"student_id,omitempty"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsStudent reports whether the actor authenticates as a student.
func (c *JWTClaims) IsStudent() bool {
	return c != nil && c.Role == RoleStudent
}

// ActsFor reports whether the actor is (or is authorized as) the given student.
func (c *JWTClaims) ActsFor(studentID string) bool {
	return c != nil && c.StudentID != "" && c.StudentID == studentID
}
