package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"neodiag/internal/interview"
	"neodiag/internal/metrics"
	"neodiag/internal/model"
	"neodiag/internal/repository"
)

var ErrSessionNotDone = errors.New("session is not finished")

// ReviewService serves the reviewer panel. It reads only the durable store,
// so it never sees an interview that is still running.
type ReviewService struct {
	repo        repository.SessionRepo
	gen         ReportGenerator
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics
	reports     singleflight.Group
}

type ReviewOption func(*ReviewService)

func WithReviewLogger(logger *slog.Logger) ReviewOption {
	return func(s *ReviewService) {
		s.logger = logger
	}
}

func WithReviewMetrics(m *metrics.Metrics) ReviewOption {
	return func(s *ReviewService) {
		s.metrics = m
	}
}

func WithReviewBroadcaster(b Broadcaster) ReviewOption {
	return func(s *ReviewService) {
		s.broadcaster = b
	}
}

// NewReviewService creates a new review service
func NewReviewService(repo repository.SessionRepo, gen ReportGenerator, opts ...ReviewOption) *ReviewService {
	s := &ReviewService{
		repo:        repo,
		gen:         gen,
		broadcaster: noopBroadcaster{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every stored session, newest first.
func (s *ReviewService) List(ctx context.Context) ([]model.SessionSummary, error) {
	sessions, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]model.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, summarize(sess))
	}
	return out, nil
}

// Get loads one finished session.
func (s *ReviewService) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if !sess.IsDone() {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotDone)
	}
	return sess, nil
}

// Export returns the session as indented JSON with its download file name.
func (s *ReviewService) Export(ctx context.Context, id string) (string, []byte, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encode session %s: %w", id, err)
	}
	short := sess.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("session_%s.json", short), data, nil
}

// Table builds the master table for a finished session.
func (s *ReviewService) Table(ctx context.Context, id string) (*model.MasterTable, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	table := interview.BuildMasterTable(sess)
	return &table, nil
}

// GenerateReport writes the master report and stores it on the session.
// Concurrent requests for the same session share one generator call.
func (s *ReviewService) GenerateReport(ctx context.Context, id, requestedModel string) (*model.ReportResponse, error) {
	v, err, _ := s.reports.Do(id, func() (interface{}, error) {
		return s.generateReport(context.WithoutCancel(ctx), id, requestedModel)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ReportResponse), nil
}

func (s *ReviewService) generateReport(ctx context.Context, id, requestedModel string) (*model.ReportResponse, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Final == nil {
		return nil, fmt.Errorf("session %s: %w: no final payload", id, repository.ErrCorruptSession)
	}

	modelName := s.gen.ResolveReportModel(requestedModel)
	text, err := s.gen.GenerateReport(ctx, modelName, sess.Final)
	if err != nil {
		s.logger.Error("report generation failed", "session_id", id, "model", modelName, "error", err)
		return nil, fmt.Errorf("generate report for session %s: %w", id, err)
	}

	sess.MasterReport = &text
	sess.UpdatedAt = timeNow().UTC().Truncate(time.Millisecond)
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("store report for session %s: %w", id, err)
	}

	s.metrics.IncrementReports()
	s.logger.Info("master report stored", "session_id", id, "model", modelName)
	s.broadcaster.BroadcastToReviewers(EventReportReady, summarize(sess))

	return &model.ReportResponse{
		SessionID: id,
		Model:     modelName,
		Report:    text,
	}, nil
}
