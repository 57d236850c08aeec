package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neodiag/internal/cache"
	"neodiag/internal/interview"
	"neodiag/internal/model"
	"neodiag/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateQuestion(ctx context.Context, req model.GenerationRequest) (GeneratedQuestion, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(GeneratedQuestion), args.Error(1)
}

func (m *mockGenerator) QuestionModel() string { return "gemini-test" }

func (m *mockGenerator) GenerateReport(ctx context.Context, modelName string, payload *model.FinalPayload) (string, error) {
	args := m.Called(ctx, modelName, payload)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) ResolveReportModel(requested string) string {
	if requested == "" {
		return "gemini-report"
	}
	return requested
}

// question builds a generator reply for a single-choice question.
func question(text string, ev model.EvidenceUpdate) GeneratedQuestion {
	return GeneratedQuestion{Generation: model.Generation{
		Question: model.QuestionSpec{Question: text, Type: model.QuestionSingle, Options: []string{"Plan", "Act", "Other (in my own words)"}},
		Evidence: ev,
	}}
}

type event struct {
	target  string // "reviewers" or a session id
	msgType string
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []event
}

func (b *recordingBroadcaster) BroadcastToReviewers(msgType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{target: "reviewers", msgType: msgType})
}

func (b *recordingBroadcaster) BroadcastToSession(sessionID, msgType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{target: sessionID, msgType: msgType})
}

func (b *recordingBroadcaster) all() []event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event(nil), b.events...)
}

var errStoreDown = errors.New("store unavailable")

// flakyRepo fails Save while failSaves is set.
type flakyRepo struct {
	repository.SessionRepo
	mu        sync.Mutex
	failSaves bool
}

func (r *flakyRepo) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSaves = v
}

func (r *flakyRepo) Save(ctx context.Context, s *model.Session) error {
	r.mu.Lock()
	fail := r.failSaves
	r.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return r.SessionRepo.Save(ctx, s)
}

func newFileRepo(t *testing.T) *flakyRepo {
	t.Helper()
	repo, err := repository.NewFileSessionRepo(t.TempDir(), repository.WithLogger(discardLogger()))
	require.NoError(t, err)
	return &flakyRepo{SessionRepo: repo}
}

func newMemoryCache(t *testing.T) cache.SessionCache {
	t.Helper()
	c, err := cache.NewMemorySessionCache(16)
	require.NoError(t, err)
	return c
}

func testClock() func() time.Time {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// storedSession runs a two-answer interview to DONE and saves it.
func storedSession(t *testing.T, repo repository.SessionRepo, name string) *model.Session {
	t.Helper()
	seq := interview.NewSequencer(interview.DefaultPolicy, interview.WithClock(testClock()), interview.WithAppVersion("test"))
	sess := seq.NewSession("gemini-test")
	require.NoError(t, seq.Begin(sess, model.Subject{Name: name, Contact: "@" + name, Request: "career change"}))

	evidence := []model.EvidenceUpdate{
		{ScoresDelta: map[string]float64{"Ruby": 0.5, "Amber": 0.2}, PositionGuess: map[string]string{"p1": "Ruby"}, Confidence: map[string]float64{"p1": 0.6}},
		{DimensionDeltas: map[string]map[string]float64{"tool": {"Amber": 0.3}}},
	}
	for _, ev := range evidence {
		turn, err := seq.Next(sess)
		require.NoError(t, err)
		_, err = seq.Offer(sess, turn.Step.ID, question("q "+turn.Step.ID, ev).Generation, false)
		require.NoError(t, err)
		_, err = seq.Answer(sess, turn.Step.ID, "Act")
		require.NoError(t, err)
	}
	require.NoError(t, seq.Finish(sess))
	require.NoError(t, repo.Save(context.Background(), sess))
	return sess
}
