package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"neodiag/internal/model"
	"neodiag/internal/service"
)

// AuthHandler exchanges the reviewer password for a token
type AuthHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

func NewAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, logger: logger}
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.authSvc.Login(req.Password)
	switch {
	case errors.Is(err, service.ErrReviewerDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Warn("reviewer login rejected", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	h.logger.Info("reviewer logged in", "remote_addr", r.RemoteAddr, "expires_in", resp.ExpiresIn)

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
