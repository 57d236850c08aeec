package interview

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"neodiag/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrMissingName       = errors.New("subject name is required")
	ErrNoPendingQuestion = errors.New("no pending question")
	ErrQuestionPending   = errors.New("a question is already pending")
	ErrStepMismatch      = errors.New("answer does not match the pending step")
	ErrBlankAnswer       = errors.New("answer is blank")
)

// Turn is what the sequencer wants to happen next.
type Turn struct {
	Done       bool
	StopReason model.StopReason
	Step       model.Step
	// Pending is set when the step already has a generated question waiting
	// for an answer; callers show it again instead of generating a new one.
	Pending *model.PendingQuestion
}

// Dropped lists evidence keys that were ignored, either because they fall
// outside the fixed registries or because the delta would overflow the score.
type Dropped struct {
	Scores     []string
	Dimensions []string
	Guesses    []string
	Confidence []string
}

// Count is the total number of dropped keys.
func (d Dropped) Count() int {
	return len(d.Scores) + len(d.Dimensions) + len(d.Guesses) + len(d.Confidence)
}

// Sequencer drives a Session through INTAKE, QUESTIONING and DONE. It holds no
// session state of its own: every method takes the session it mutates.
type Sequencer struct {
	policy     Policy
	appVersion string
	now        func() time.Time
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) {
		s.now = now
	}
}

// WithAppVersion sets the version stamped into final payloads.
func WithAppVersion(v string) Option {
	return func(s *Sequencer) {
		s.appVersion = v
	}
}

func NewSequencer(policy Policy, opts ...Option) *Sequencer {
	s := &Sequencer{
		policy:     policy,
		appVersion: "dev",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stamp is the current time at millisecond precision, the finest a BSON
// date keeps, so sessions compare equal after a store round trip.
func (q *Sequencer) stamp() time.Time {
	return q.now().UTC().Truncate(time.Millisecond)
}

// Policy returns the termination limits the sequencer evaluates.
func (q *Sequencer) Policy() Policy {
	return q.policy
}

// NewSession creates an empty session in INTAKE.
func (q *Sequencer) NewSession(modelID string) *model.Session {
	now := q.stamp()
	return &model.Session{
		ID:              uuid.NewString(),
		Status:          model.SessionIntake,
		Answers:         []model.AnswerRecord{},
		Scores:          model.NewScoreMap(),
		DimensionScores: model.NewScoreMatrix(),
		PositionGuess:   model.NewPositionGuess(),
		Confidence:      model.NewConfidenceMap(),
		Model:           modelID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Begin captures the intake fields and moves the session to QUESTIONING.
// Progress counters and the answer log start from zero.
func (q *Sequencer) Begin(s *model.Session, subject model.Subject) error {
	if s.Status != model.SessionIntake {
		return fmt.Errorf("begin from %s: %w", s.Status, ErrInvalidTransition)
	}
	subject.Name = strings.TrimSpace(subject.Name)
	subject.Contact = strings.TrimSpace(subject.Contact)
	subject.Request = strings.TrimSpace(subject.Request)
	if subject.Name == "" {
		return ErrMissingName
	}

	s.Subject = subject
	s.StepIndex = 0
	s.QuestionCount = 0
	s.Answers = []model.AnswerRecord{}
	s.Pending = nil
	s.Status = model.SessionQuestioning
	s.UpdatedAt = q.stamp()
	return nil
}

// Next decides the next turn. A pending question is always returned as is,
// since termination is only checked between steps. Otherwise the stop
// predicate runs and either completes the session or names the step to ask.
func (q *Sequencer) Next(s *model.Session) (Turn, error) {
	switch s.Status {
	case model.SessionDone:
		return Turn{Done: true, StopReason: s.StopReason}, nil
	case model.SessionQuestioning:
	default:
		return Turn{}, fmt.Errorf("next from %s: %w", s.Status, ErrInvalidTransition)
	}

	if s.Pending != nil {
		step, _ := model.CurrentStep(s.StepIndex)
		return Turn{Step: step, Pending: s.Pending}, nil
	}

	if reason, stop := q.policy.Evaluate(s); stop {
		q.complete(s, reason)
		return Turn{Done: true, StopReason: reason}, nil
	}

	step, _ := model.CurrentStep(s.StepIndex)
	return Turn{Step: step}, nil
}

// Offer stores a generated question as pending for the current step.
func (q *Sequencer) Offer(s *model.Session, stepID string, gen model.Generation, fallback bool) (*model.PendingQuestion, error) {
	if s.Status != model.SessionQuestioning {
		return nil, fmt.Errorf("offer from %s: %w", s.Status, ErrInvalidTransition)
	}
	if s.Pending != nil {
		return nil, ErrQuestionPending
	}
	step, ok := model.CurrentStep(s.StepIndex)
	if !ok || step.ID != stepID {
		return nil, fmt.Errorf("offer %q at step %d: %w", stepID, s.StepIndex, ErrStepMismatch)
	}

	s.Pending = &model.PendingQuestion{
		StepID:      stepID,
		Question:    gen.Question,
		Evidence:    gen.Evidence,
		Fallback:    fallback,
		GeneratedAt: q.stamp(),
	}
	s.UpdatedAt = s.Pending.GeneratedAt
	return s.Pending, nil
}

// Answer records the subject's answer to the pending question and applies the
// evidence bundled with it. A blank answer leaves the session untouched. An
// empty stepID skips the check against the pending step.
func (q *Sequencer) Answer(s *model.Session, stepID, answer string) (Dropped, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Dropped{}, ErrBlankAnswer
	}
	if s.Status != model.SessionQuestioning {
		return Dropped{}, fmt.Errorf("answer from %s: %w", s.Status, ErrInvalidTransition)
	}
	if s.Pending == nil {
		return Dropped{}, ErrNoPendingQuestion
	}
	if stepID != "" && stepID != s.Pending.StepID {
		return Dropped{}, fmt.Errorf("answer for %q, pending %q: %w", stepID, s.Pending.StepID, ErrStepMismatch)
	}

	now := q.stamp()
	s.Answers = append(s.Answers, model.AnswerRecord{
		StepID:    s.Pending.StepID,
		Question:  s.Pending.Question.Question,
		Answer:    answer,
		Timestamp: now,
	})
	dropped := ApplyEvidence(s, s.Pending.Evidence)

	s.QuestionCount++
	if s.StepIndex < model.StepCount() {
		s.StepIndex++
	}
	s.Pending = nil
	s.UpdatedAt = now
	return dropped, nil
}

// Finish stops questioning immediately, keeping the evidence gathered so far.
// An unanswered pending question is discarded. Finishing a DONE session is a
// no-op.
func (q *Sequencer) Finish(s *model.Session) error {
	switch s.Status {
	case model.SessionDone:
		return nil
	case model.SessionQuestioning:
		q.complete(s, model.StopForced)
		return nil
	default:
		return fmt.Errorf("finish from %s: %w", s.Status, ErrInvalidTransition)
	}
}

func (q *Sequencer) complete(s *model.Session, reason model.StopReason) {
	now := q.stamp()
	s.Pending = nil
	s.Status = model.SessionDone
	s.StopReason = reason
	s.CompletedAt = &now
	s.UpdatedAt = now
	s.Final = BuildFinalPayload(s, q.appVersion, now)
}

// ApplyEvidence folds one evidence update into the session's accumulators.
func ApplyEvidence(s *model.Session, ev model.EvidenceUpdate) Dropped {
	var d Dropped
	d.Scores = ApplyScoreDelta(s.Scores, ev.ScoresDelta)

	dims := make([]string, 0, len(ev.DimensionDeltas))
	for dim := range ev.DimensionDeltas {
		dims = append(dims, dim)
	}
	slices.Sort(dims)
	for _, dim := range dims {
		d.Dimensions = append(d.Dimensions, ApplyDimensionDelta(s.DimensionScores, dim, ev.DimensionDeltas[dim])...)
	}

	d.Guesses = ApplyPositionGuess(s.PositionGuess, ev.PositionGuess)
	d.Confidence = ApplyConfidence(s.Confidence, ev.Confidence)
	return d
}
