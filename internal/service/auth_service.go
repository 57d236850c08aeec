package service

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"neodiag/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrReviewerDisabled   = errors.New("reviewer access is disabled: no master password configured")
)

const (
	roleReviewer = "reviewer"
	tokenIssuer  = "neodiag"
)

// AuthService handles reviewer login and subject tokens
type AuthService struct {
	masterPassword string
	jwtSecret      []byte
	reviewerTTL    time.Duration
	subjectTTL     time.Duration
}

// NewAuthService creates a new auth service. An empty password disables
// reviewer login; subject tokens keep working. An empty jwtSecret is replaced
// by a random per-process key, so tokens do not survive a restart.
func NewAuthService(masterPassword, jwtSecret string, reviewerTTL, subjectTTL time.Duration) *AuthService {
	secret := []byte(jwtSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret) // never fails since Go 1.24
	}
	return &AuthService{
		masterPassword: masterPassword,
		jwtSecret:      secret,
		reviewerTTL:    reviewerTTL,
		subjectTTL:     subjectTTL,
	}
}

// ReviewerEnabled reports whether a master password is configured.
func (s *AuthService) ReviewerEnabled() bool {
	return s.masterPassword != ""
}

// Login validates the master password and returns a reviewer token
func (s *AuthService) Login(password string) (*model.LoginResponse, error) {
	if !s.ReviewerEnabled() {
		return nil, ErrReviewerDisabled
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.masterPassword)) != 1 {
		return nil, ErrInvalidCredentials
	}

	now := timeNow()
	claims := &model.ReviewerClaims{
		Role: roleReviewer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.reviewerTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:     tokenString,
		ExpiresIn: int64(s.reviewerTTL.Seconds()),
	}, nil
}

// ValidateReviewerToken validates a reviewer JWT and returns claims
func (s *AuthService) ValidateReviewerToken(tokenString string) (*model.ReviewerClaims, error) {
	claims := &model.ReviewerClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Role != roleReviewer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateSubjectToken creates a token scoped to one interview session
func (s *AuthService) GenerateSubjectToken(sessionID string) (string, error) {
	now := timeNow()
	claims := &model.SubjectClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.subjectTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateSubjectToken validates a subject JWT and returns claims
func (s *AuthService) ValidateSubjectToken(tokenString string) (*model.SubjectClaims, error) {
	claims := &model.SubjectClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(timeNow),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
