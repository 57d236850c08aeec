package model

import "time"

// SessionStatus is the interview lifecycle state. It only moves forward.
type SessionStatus string

const (
	SessionIntake      SessionStatus = "INTAKE"
	SessionQuestioning SessionStatus = "QUESTIONING"
	SessionDone        SessionStatus = "DONE"
)

// StopReason records why a session reached DONE.
type StopReason string

const (
	StopBudget     StopReason = "budget_exhausted"
	StopConfidence StopReason = "confidence_reached"
	StopPlan       StopReason = "plan_exhausted"
	StopForced     StopReason = "finished_early"
)

// Subject is the intake metadata captured before questioning starts
type Subject struct {
	Name    string `json:"name" bson:"name"`
	Contact string `json:"contact" bson:"contact"` // phone or email for the full report
	Request string `json:"request" bson:"request"` // one-line request in the subject's words
}

// ScoreMap holds one score per category.
type ScoreMap map[Category]float64

// NewScoreMap returns a map with every category at zero.
func NewScoreMap() ScoreMap {
	m := make(ScoreMap, len(Categories))
	for _, c := range Categories {
		m[c] = 0
	}
	return m
}

// Clone returns an independent copy.
func (m ScoreMap) Clone() ScoreMap {
	out := make(ScoreMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ScoreMatrix holds one ScoreMap per dimension.
type ScoreMatrix map[Dimension]ScoreMap

// NewScoreMatrix returns a zeroed matrix covering every dimension.
func NewScoreMatrix() ScoreMatrix {
	m := make(ScoreMatrix, len(Dimensions))
	for _, d := range Dimensions {
		m[d] = NewScoreMap()
	}
	return m
}

func (m ScoreMatrix) Clone() ScoreMatrix {
	out := make(ScoreMatrix, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// ConfidenceMap is the current belief per slot, replaced rather than summed.
type ConfidenceMap map[Slot]float64

func NewConfidenceMap() ConfidenceMap {
	return ConfidenceMap{SlotP1: 0, SlotP2: 0, SlotP3: 0}
}

func (m ConfidenceMap) Clone() ConfidenceMap {
	out := make(ConfidenceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PositionGuess is the latest category label per slot. An empty string means
// no guess yet.
type PositionGuess map[Slot]string

func NewPositionGuess() PositionGuess {
	return PositionGuess{SlotP1: "", SlotP2: "", SlotP3: ""}
}

func (m PositionGuess) Clone() PositionGuess {
	out := make(PositionGuess, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AnswerRecord is one entry of the append-only answer log
type AnswerRecord struct {
	StepID    string    `json:"stepId" bson:"stepId"`
	Question  string    `json:"question" bson:"question"`
	Answer    string    `json:"answer" bson:"answer"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// PendingQuestion is a generated question waiting for the subject's answer,
// together with the evidence to apply once it is answered.
type PendingQuestion struct {
	StepID      string         `json:"stepId" bson:"stepId"`
	Question    QuestionSpec   `json:"question" bson:"question"`
	Evidence    EvidenceUpdate `json:"evidence" bson:"evidence"`
	Fallback    bool           `json:"fallback,omitempty" bson:"fallback,omitempty"` // generator output was unusable
	GeneratedAt time.Time      `json:"generatedAt" bson:"generatedAt"`
}

// Session is the root aggregate of one interview
type Session struct {
	ID              string         `json:"id" bson:"id"`
	Subject         Subject        `json:"subject" bson:"subject"`
	Status          SessionStatus  `json:"status" bson:"status"`
	StepIndex       int            `json:"stepIndex" bson:"stepIndex"`
	QuestionCount   int            `json:"questionCount" bson:"questionCount"`
	Answers         []AnswerRecord `json:"answers" bson:"answers"`
	Scores          ScoreMap       `json:"scores" bson:"scores"`
	DimensionScores ScoreMatrix    `json:"dimensionScores" bson:"dimensionScores"`
	PositionGuess   PositionGuess  `json:"positionGuess" bson:"positionGuess"`
	Confidence      ConfidenceMap  `json:"confidence" bson:"confidence"`
	Model           string         `json:"model" bson:"model"`
	MasterReport    *string        `json:"masterReport,omitempty" bson:"masterReport,omitempty"`
	StopReason      StopReason     `json:"stopReason,omitempty" bson:"stopReason,omitempty"`

	// Pending only exists while QUESTIONING; it never reaches the durable store.
	Pending *PendingQuestion `json:"pending,omitempty" bson:"pending,omitempty"`
	// Final is computed once when the session reaches DONE.
	Final *FinalPayload `json:"final,omitempty" bson:"final,omitempty"`

	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// IsDone reports whether the session reached its terminal state.
func (s *Session) IsDone() bool {
	return s.Status == SessionDone
}

// LastAnswers returns up to n of the most recent answers, oldest first.
func (s *Session) LastAnswers(n int) []AnswerRecord {
	if n <= 0 || len(s.Answers) == 0 {
		return []AnswerRecord{}
	}
	start := len(s.Answers) - n
	if start < 0 {
		start = 0
	}
	out := make([]AnswerRecord, len(s.Answers)-start)
	copy(out, s.Answers[start:])
	return out
}
