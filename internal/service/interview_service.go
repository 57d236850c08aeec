package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"neodiag/internal/cache"
	"neodiag/internal/interview"
	"neodiag/internal/metrics"
	"neodiag/internal/model"
	"neodiag/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("interview not found")
	ErrInterviewActive = errors.New("interview is still in progress")
)

const historyTail = 6

var timeNow = time.Now

// InterviewService runs subject-facing interviews. Active sessions live in the
// cache; a session reaches the durable store once it is DONE.
type InterviewService struct {
	seq         *interview.Sequencer
	cache       cache.SessionCache
	repo        repository.SessionRepo
	gen         QuestionGenerator
	auth        *AuthService
	broadcaster Broadcaster
	followups   int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	locks       *keyedMutex
}

type InterviewOption func(*InterviewService)

func WithInterviewLogger(logger *slog.Logger) InterviewOption {
	return func(s *InterviewService) {
		s.logger = logger
	}
}

func WithInterviewMetrics(m *metrics.Metrics) InterviewOption {
	return func(s *InterviewService) {
		s.metrics = m
	}
}

func WithBroadcaster(b Broadcaster) InterviewOption {
	return func(s *InterviewService) {
		s.broadcaster = b
	}
}

// WithFollowupsPerStep sets the follow-up allowance echoed to the generator.
func WithFollowupsPerStep(n int) InterviewOption {
	return func(s *InterviewService) {
		s.followups = n
	}
}

// NewInterviewService creates a new interview service
func NewInterviewService(
	seq *interview.Sequencer,
	sessionCache cache.SessionCache,
	repo repository.SessionRepo,
	gen QuestionGenerator,
	auth *AuthService,
	opts ...InterviewOption,
) *InterviewService {
	s := &InterviewService{
		seq:         seq,
		cache:       sessionCache,
		repo:        repo,
		gen:         gen,
		auth:        auth,
		broadcaster: noopBroadcaster{},
		followups:   1,
		logger:      slog.Default(),
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs intake and returns the new session id with a subject token.
func (s *InterviewService) Start(ctx context.Context, req model.IntakeRequest) (*model.IntakeResponse, error) {
	sess := s.seq.NewSession(s.gen.QuestionModel())
	if err := s.seq.Begin(sess, model.Subject{Name: req.Name, Contact: req.Contact, Request: req.Request}); err != nil {
		return nil, err
	}

	token, err := s.auth.GenerateSubjectToken(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("issue subject token: %w", err)
	}
	if err := s.cache.Set(ctx, sess); err != nil {
		return nil, fmt.Errorf("cache session %s: %w", sess.ID, err)
	}

	s.logger.Info("interview started", "session_id", sess.ID, "model", sess.Model)
	return &model.IntakeResponse{
		SessionID: sess.ID,
		Token:     token,
		Status:    sess.Status,
	}, nil
}

// CurrentQuestion returns the pending question, generating one when the
// current step has none. A finished interview reports DONE.
func (s *InterviewService) CurrentQuestion(ctx context.Context, id string) (*model.SubmitAnswerResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, sess)
}

// SubmitAnswer records the answer to the pending question and moves on. When
// the next question cannot be generated the answer is kept and the caller
// retries through CurrentQuestion.
func (s *InterviewService) SubmitAnswer(ctx context.Context, id string, req model.SubmitAnswerRequest) (*model.SubmitAnswerResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	dropped, err := s.seq.Answer(sess, req.StepID, req.Answer)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementAnswers()
	s.reportDropped(sess.ID, dropped)

	if err := s.cache.Set(ctx, sess); err != nil {
		return nil, fmt.Errorf("cache session %s: %w", sess.ID, err)
	}
	return s.advance(ctx, sess)
}

// Finish ends the interview early with the evidence gathered so far.
func (s *InterviewService) Finish(ctx context.Context, id string) (*model.SubmitAnswerResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.IsDone() && !s.isCached(ctx, id) {
		return s.doneResponse(sess), nil
	}
	if err := s.seq.Finish(sess); err != nil {
		return nil, err
	}
	if err := s.complete(ctx, sess); err != nil {
		return nil, err
	}
	return s.doneResponse(sess), nil
}

// Result returns the subject's preliminary report for a finished interview.
func (s *InterviewService) Result(ctx context.Context, id string) (*model.ResultView, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsDone() {
		return nil, ErrInterviewActive
	}
	if s.isCached(ctx, id) {
		// completed earlier but the store write failed
		if err := s.complete(ctx, sess); err != nil {
			return nil, err
		}
	}
	return &model.ResultView{
		SessionID:     sess.ID,
		Status:        sess.Status,
		QuestionCount: sess.QuestionCount,
		Report:        interview.ClientReport(sess),
	}, nil
}

// load returns the active session from the cache, or the finished one from
// the store.
func (s *InterviewService) load(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.cache.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read cached session %s: %w", id, err)
	}
	if sess != nil {
		return sess, nil
	}

	sess, err = s.repo.Load(ctx, id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *InterviewService) isCached(ctx context.Context, id string) bool {
	sess, err := s.cache.Get(ctx, id)
	return err == nil && sess != nil
}

// advance asks the sequencer for the next turn and generates a question when
// the step has none. A generator failure leaves the session as it was.
func (s *InterviewService) advance(ctx context.Context, sess *model.Session) (*model.SubmitAnswerResponse, error) {
	wasDone := sess.IsDone()
	turn, err := s.seq.Next(sess)
	if err != nil {
		return nil, err
	}
	if turn.Done {
		if !wasDone || s.isCached(ctx, sess.ID) {
			if err := s.complete(ctx, sess); err != nil {
				return nil, err
			}
		}
		return s.doneResponse(sess), nil
	}
	if turn.Pending != nil {
		return s.questionResponse(sess, turn.Step, turn.Pending), nil
	}

	result, err := s.gen.GenerateQuestion(ctx, s.generationRequest(sess, turn.Step))
	if err != nil {
		s.logger.Error("question generation failed",
			"session_id", sess.ID,
			"step_id", turn.Step.ID,
			"error", err,
		)
		return nil, err
	}

	pending, err := s.seq.Offer(sess, turn.Step.ID, result.Generation, result.Fallback)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, sess); err != nil {
		return nil, fmt.Errorf("cache session %s: %w", sess.ID, err)
	}
	return s.questionResponse(sess, turn.Step, pending), nil
}

// complete moves a DONE session into the store. On a failed save the session
// stays cached so completion can be retried.
func (s *InterviewService) complete(ctx context.Context, sess *model.Session) error {
	if err := s.repo.Save(ctx, sess); err != nil {
		s.logger.Error("failed to store finished interview", "session_id", sess.ID, "error", err)
		if cerr := s.cache.Set(ctx, sess); cerr != nil {
			s.logger.Error("failed to keep finished interview cached", "session_id", sess.ID, "error", cerr)
		}
		return err
	}
	if err := s.cache.Delete(ctx, sess.ID); err != nil {
		s.logger.Warn("failed to evict finished interview", "session_id", sess.ID, "error", err)
	}

	s.metrics.IncrementCompleted(string(sess.StopReason))
	s.logger.Info("interview completed",
		"session_id", sess.ID,
		"stop_reason", sess.StopReason,
		"question_count", sess.QuestionCount,
	)

	summary := summarize(sess)
	s.broadcaster.BroadcastToReviewers(EventSessionCompleted, summary)
	s.broadcaster.BroadcastToSession(sess.ID, EventInterviewCompleted, map[string]interface{}{
		"sessionId":     sess.ID,
		"questionCount": sess.QuestionCount,
	})
	return nil
}

func (s *InterviewService) reportDropped(sessionID string, d interview.Dropped) {
	if d.Count() == 0 {
		return
	}
	s.metrics.AddDropped("scores", len(d.Scores))
	s.metrics.AddDropped("dimensions", len(d.Dimensions))
	s.metrics.AddDropped("positions", len(d.Guesses))
	s.metrics.AddDropped("confidence", len(d.Confidence))
	s.logger.Warn("evidence entries ignored",
		"session_id", sessionID,
		"scores", d.Scores,
		"dimensions", d.Dimensions,
		"positions", d.Guesses,
		"confidence", d.Confidence,
	)
}

func (s *InterviewService) generationRequest(sess *model.Session, step model.Step) model.GenerationRequest {
	policy := s.seq.Policy()
	tail := sess.LastAnswers(historyTail)
	history := make([]model.HistoryEntry, len(tail))
	for i, a := range tail {
		history[i] = model.HistoryEntry{StepID: a.StepID, Question: a.Question, Answer: a.Answer}
	}

	return model.GenerationRequest{
		StepID:   step.ID,
		StepGoal: step.Goal,
		Client:   sess.Subject,
		State: model.GenerationState{
			StepIndex:       sess.StepIndex,
			QuestionCount:   sess.QuestionCount,
			PositionGuess:   sess.PositionGuess.Clone(),
			Confidence:      sess.Confidence.Clone(),
			Scores:          sess.Scores.Clone(),
			DimensionScores: sess.DimensionScores.Clone(),
		},
		HistoryTail: history,
		Limits: model.GenerationLimits{
			MaxQuestionsTotal:   policy.MaxQuestions,
			ConfidenceStop:      policy.StopThreshold,
			MaxFollowupsPerStep: s.followups,
		},
	}
}

func (s *InterviewService) progress(sess *model.Session, step *model.Step) model.Progress {
	p := model.Progress{
		QuestionCount: sess.QuestionCount,
		MaxQuestions:  s.seq.Policy().MaxQuestions,
	}
	if step != nil {
		p.StepTitle = step.Title
	}
	return p
}

func (s *InterviewService) questionResponse(sess *model.Session, step model.Step, pending *model.PendingQuestion) *model.SubmitAnswerResponse {
	progress := s.progress(sess, &step)
	return &model.SubmitAnswerResponse{
		Status: sess.Status,
		Next: &model.QuestionView{
			SessionID: sess.ID,
			StepID:    pending.StepID,
			Question:  pending.Question,
			Progress:  progress,
		},
		Progress: progress,
	}
}

func (s *InterviewService) doneResponse(sess *model.Session) *model.SubmitAnswerResponse {
	return &model.SubmitAnswerResponse{
		Status:   sess.Status,
		Progress: s.progress(sess, nil),
	}
}

func summarize(sess *model.Session) model.SessionSummary {
	return model.SessionSummary{
		ID:            sess.ID,
		Label:         model.SummaryLabel(sess),
		Name:          sess.Subject.Name,
		Request:       sess.Subject.Request,
		Status:        sess.Status,
		QuestionCount: sess.QuestionCount,
		HasReport:     sess.MasterReport != nil,
		UpdatedAt:     sess.UpdatedAt,
	}
}
