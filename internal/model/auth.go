package model

import "github.com/golang-jwt/jwt/v5"

// ReviewerClaims are JWT claims for the reviewer panel
type ReviewerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SubjectClaims are JWT claims for a subject token scoped to one session
type SubjectClaims struct {
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for reviewer login
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // seconds
}
