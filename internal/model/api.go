package model

import (
	"fmt"
	"time"
)

// IntakeRequest starts a new interview
type IntakeRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Request string `json:"request"`
}

// Progress is shown to the subject alongside every question
type Progress struct {
	QuestionCount int    `json:"questionCount"`
	MaxQuestions  int    `json:"maxQuestions"`
	StepTitle     string `json:"stepTitle,omitempty"`
}

// QuestionView is the subject-facing rendering of the pending question.
// It never carries evidence or scores.
type QuestionView struct {
	SessionID string       `json:"sessionId"`
	StepID    string       `json:"stepId"`
	Question  QuestionSpec `json:"question"`
	Progress  Progress     `json:"progress"`
}

// IntakeResponse is returned after intake
type IntakeResponse struct {
	SessionID string        `json:"sessionId"`
	Token     string        `json:"token"` // subject token scoped to SessionID
	Status    SessionStatus `json:"status"`
}

// SubmitAnswerRequest answers the pending question identified by StepID
type SubmitAnswerRequest struct {
	StepID string `json:"stepId"`
	Answer string `json:"answer"`
}

// SubmitAnswerResponse carries either the next question or the done flag.
type SubmitAnswerResponse struct {
	Status   SessionStatus `json:"status"`
	Next     *QuestionView `json:"next,omitempty"`
	Progress Progress      `json:"progress"`
}

// ResultView is what the subject sees after DONE
type ResultView struct {
	SessionID     string        `json:"sessionId"`
	Status        SessionStatus `json:"status"`
	QuestionCount int           `json:"questionCount"`
	Report        string        `json:"report"`
}

// SessionSummary is one line of the reviewer session list
type SessionSummary struct {
	ID            string        `json:"id"`
	Label         string        `json:"label"`
	Name          string        `json:"name"`
	Request       string        `json:"request"`
	Status        SessionStatus `json:"status"`
	QuestionCount int           `json:"questionCount"`
	HasReport     bool          `json:"hasReport"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// SummaryLabel renders "name | request | timestamp | id[:8]".
func SummaryLabel(s *Session) string {
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	ts := s.UpdatedAt
	if s.Final != nil {
		ts = s.Final.Meta.Timestamp
	}
	return fmt.Sprintf("%s | %s | %s | %s", s.Subject.Name, s.Subject.Request, ts.Format("2006-01-02 15:04"), id)
}

// DimensionLeaders are the two strongest categories of one dimension
type DimensionLeaders struct {
	Dimension Dimension        `json:"dimension"`
	Top       []RankedCategory `json:"top"`
}

// MasterTable is the reviewer's compact view of a finished session
type MasterTable struct {
	SessionID     string             `json:"sessionId"`
	PositionGuess PositionGuess      `json:"positionGuess"`
	Confidence    ConfidenceMap      `json:"confidence"`
	Top6          []RankedCategory   `json:"top6"`
	Dimensions    []DimensionLeaders `json:"dimensions"`
}

// GenerateReportRequest optionally overrides the report model
type GenerateReportRequest struct {
	Model string `json:"model"`
}

// ReportResponse wraps a generated master report
type ReportResponse struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
	Report    string `json:"report"`
}
