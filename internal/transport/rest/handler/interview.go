package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"neodiag/internal/interview"
	"neodiag/internal/model"
	"neodiag/internal/service"
)

// InterviewHandler serves the subject-facing interview endpoints
type InterviewHandler struct {
	interviewSvc *service.InterviewService
	logger       *slog.Logger
}

// NewInterviewHandler creates a new interview handler
func NewInterviewHandler(interviewSvc *service.InterviewService, logger *slog.Logger) *InterviewHandler {
	return &InterviewHandler{interviewSvc: interviewSvc, logger: logger}
}

// Start handles POST /v1/interviews
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req model.IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.interviewSvc.Start(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Question handles GET /v1/interviews/{id}/question
func (h *InterviewHandler) Question(w http.ResponseWriter, r *http.Request) {
	resp, err := h.interviewSvc.CurrentQuestion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Answer handles POST /v1/interviews/{id}/answers
func (h *InterviewHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.interviewSvc.SubmitAnswer(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Finish handles POST /v1/interviews/{id}/finish
func (h *InterviewHandler) Finish(w http.ResponseWriter, r *http.Request) {
	resp, err := h.interviewSvc.Finish(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Result handles GET /v1/interviews/{id}/result
func (h *InterviewHandler) Result(w http.ResponseWriter, r *http.Request) {
	resp, err := h.interviewSvc.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// fail maps service errors to subject-facing messages. Internal details stay
// in the log.
func (h *InterviewHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, interview.ErrMissingName):
		writeError(w, http.StatusBadRequest, "please enter your name")
	case errors.Is(err, interview.ErrBlankAnswer):
		writeError(w, http.StatusBadRequest, "the answer is empty, please retry")
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "interview not found, please start again")
	case errors.Is(err, service.ErrInterviewActive):
		writeError(w, http.StatusConflict, "the interview is not finished yet")
	case errors.Is(err, interview.ErrStepMismatch),
		errors.Is(err, interview.ErrNoPendingQuestion),
		errors.Is(err, interview.ErrQuestionPending),
		errors.Is(err, interview.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "this question is no longer current, please reload and retry")
	case errors.Is(err, service.ErrGeneratorUnavailable):
		writeError(w, http.StatusServiceUnavailable, "the next question is not ready, please retry")
	default:
		h.logger.Error("interview request failed",
			"session_id", mux.Vars(r)["id"],
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "something went wrong, please retry")
	}
}
