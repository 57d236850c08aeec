package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"neodiag/internal/model"
	"neodiag/internal/repository"
	"neodiag/internal/service"
)

// ReviewHandler serves the reviewer panel
type ReviewHandler struct {
	reviewSvc *service.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewSvc *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewSvc: reviewSvc}
}

// List handles GET /v1/sessions
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.reviewSvc.List(r.Context())
	if err != nil {
		writeReviewError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// Get handles GET /v1/sessions/{id}
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.reviewSvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeReviewError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Export handles GET /v1/sessions/{id}/export
func (h *ReviewHandler) Export(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.reviewSvc.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeReviewError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Table handles GET /v1/sessions/{id}/table
func (h *ReviewHandler) Table(w http.ResponseWriter, r *http.Request) {
	table, err := h.reviewSvc.Table(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeReviewError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, table)
}

// GenerateReport handles POST /v1/sessions/{id}/report. The body is optional.
func (h *ReviewHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.reviewSvc.GenerateReport(r.Context(), mux.Vars(r)["id"], req.Model)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeReviewError keeps the wrapped message, which names the session and
// the failed operation.
func writeReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionNotDone):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrReportUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
