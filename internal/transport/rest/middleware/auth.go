package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"neodiag/internal/service"
)

type contextKey string

const (
	ReviewerKey  contextKey = "reviewer"
	SessionIDKey contextKey = "sessionId"
)

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireReviewer validates the reviewer JWT from the Authorization header
func (m *AuthMiddleware) RequireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.authSvc.ReviewerEnabled() {
			http.Error(w, `{"error":"reviewer access is disabled: no master password configured"}`, http.StatusServiceUnavailable)
			return
		}
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateReviewerToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ReviewerKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSubject validates a subject JWT and checks that it is scoped to the
// {id} route variable.
func (m *AuthMiddleware) RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			// Try query param for WebSocket
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateSubjectToken(token)
		if err != nil {
			http.Error(w, `{"error":"your link has expired, please start again"}`, http.StatusUnauthorized)
			return
		}
		if id := mux.Vars(r)["id"]; id != "" && id != claims.SessionID {
			http.Error(w, `{"error":"token not valid for this interview"}`, http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), SessionIDKey, claims.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionID extracts the subject's session id from context
func GetSessionID(ctx context.Context) string {
	if v := ctx.Value(SessionIDKey); v != nil {
		return v.(string)
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
