package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"neodiag/internal/cache"
	"neodiag/internal/interview"
	"neodiag/internal/metrics"
	"neodiag/internal/model"
	"neodiag/internal/repository"
	"neodiag/internal/service"
	"neodiag/internal/transport/rest/handler"
)

// scriptedGenerator asks a fixed question per step and can be switched off.
type scriptedGenerator struct {
	mu   sync.Mutex
	down bool
}

func (g *scriptedGenerator) setDown(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = v
}

func (g *scriptedGenerator) GenerateQuestion(_ context.Context, req model.GenerationRequest) (service.GeneratedQuestion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return service.GeneratedQuestion{}, service.ErrGeneratorUnavailable
	}
	return service.GeneratedQuestion{Generation: model.Generation{
		Question: model.QuestionSpec{Question: "Question for " + req.StepID, Type: model.QuestionText, Options: []string{}},
		Evidence: model.EvidenceUpdate{ScoresDelta: map[string]float64{"Garnet": 0.1}},
	}}, nil
}

func (g *scriptedGenerator) QuestionModel() string { return "gemini-test" }

func (g *scriptedGenerator) GenerateReport(_ context.Context, modelName string, payload *model.FinalPayload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return "", service.ErrReportUnavailable
	}
	return "report by " + modelName + " for " + payload.Meta.Name, nil
}

func (g *scriptedGenerator) ResolveReportModel(requested string) string {
	if requested == "" {
		return "gemini-report"
	}
	return requested
}

type RouterSuite struct {
	suite.Suite
	gen    *scriptedGenerator
	server *httptest.Server
	store  repository.SessionRepo
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.server, s.store, s.gen = newTestServer(s.T(), "pw")
}

func newTestServer(t *testing.T, password string) (*httptest.Server, repository.SessionRepo, *scriptedGenerator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sessionCache, err := cache.NewMemorySessionCache(16)
	if err != nil {
		t.Fatal(err)
	}
	store, err := repository.NewFileSessionRepo(t.TempDir(), repository.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	gen := &scriptedGenerator{}
	auth := service.NewAuthService(password, "test-secret", time.Hour, time.Hour)
	seq := interview.NewSequencer(interview.DefaultPolicy, interview.WithAppVersion("test"))

	router := NewRouter(&Container{
		AuthService: auth,
		InterviewService: service.NewInterviewService(seq, sessionCache, store, gen, auth,
			service.WithInterviewLogger(logger), service.WithInterviewMetrics(m)),
		ReviewService: service.NewReviewService(store, gen,
			service.WithReviewLogger(logger), service.WithReviewMetrics(m)),
		HealthChecks: map[string]handler.HealthCheck{
			"cache": sessionCache.Ping,
			"store": store.Ping,
		},
		Gatherer: reg,
		Logger:   logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store, gen
}

func (s *RouterSuite) do(method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func (s *RouterSuite) start(name string) (string, string) {
	resp, body := s.do(http.MethodPost, "/v1/interviews", "", model.IntakeRequest{Name: name, Contact: "@" + name, Request: "career"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	return body["sessionId"].(string), body["token"].(string)
}

func (s *RouterSuite) finish(id, token string) {
	resp, _ := s.do(http.MethodGet, "/v1/interviews/"+id+"/question", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodPost, "/v1/interviews/"+id+"/answers", token, model.SubmitAnswerRequest{StepID: "p1_scope_1", Answer: "Act"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp, body := s.do(http.MethodPost, "/v1/interviews/"+id+"/finish", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(string(model.SessionDone), body["status"])
}

func (s *RouterSuite) login() string {
	resp, body := s.do(http.MethodPost, "/v1/auth/login", "", model.LoginRequest{Password: "pw"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	return body["token"].(string)
}

func (s *RouterSuite) TestSubjectFlow() {
	id, token := s.start("Ann")

	resp, body := s.do(http.MethodGet, "/v1/interviews/"+id+"/question", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	next := body["next"].(map[string]interface{})
	s.Equal("p1_scope_1", next["stepId"])
	s.NotContains(next, "evidence")

	resp, body = s.do(http.MethodPost, "/v1/interviews/"+id+"/answers", token, model.SubmitAnswerRequest{StepID: "p1_scope_1", Answer: "  "})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Contains(body["error"], "please retry")

	resp, body = s.do(http.MethodPost, "/v1/interviews/"+id+"/answers", token, model.SubmitAnswerRequest{StepID: "p1_scope_1", Answer: "Act"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("p1_scope_2", body["next"].(map[string]interface{})["stepId"])

	resp, _ = s.do(http.MethodPost, "/v1/interviews/"+id+"/answers", token, model.SubmitAnswerRequest{StepID: "p1_scope_1", Answer: "again"})
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/v1/interviews/"+id+"/result", token, nil)
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp, body = s.do(http.MethodPost, "/v1/interviews/"+id+"/finish", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(string(model.SessionDone), body["status"])

	resp, body = s.do(http.MethodGet, "/v1/interviews/"+id+"/result", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body["report"], "preliminary report")
	s.NotContains(body["report"], "Garnet")
}

func (s *RouterSuite) TestSubjectAuth() {
	idA, _ := s.start("Ann")
	_, tokenB := s.start("Bob")

	resp, _ := s.do(http.MethodGet, "/v1/interviews/"+idA+"/question", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/v1/interviews/"+idA+"/question", tokenB, nil)
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *RouterSuite) TestGeneratorDown() {
	id, token := s.start("Ann")
	s.gen.setDown(true)

	resp, body := s.do(http.MethodGet, "/v1/interviews/"+id+"/question", token, nil)
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	s.Contains(body["error"], "please retry")

	s.gen.setDown(false)
	resp, _ = s.do(http.MethodGet, "/v1/interviews/"+id+"/question", token, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) TestStartValidation() {
	resp, body := s.do(http.MethodPost, "/v1/interviews", "", model.IntakeRequest{Name: ""})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Contains(body["error"], "name")
}

func (s *RouterSuite) TestReviewerFlow() {
	id, token := s.start("Ann")
	s.finish(id, token)

	resp, _ := s.do(http.MethodGet, "/v1/sessions", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/v1/sessions", token, nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode, "subject tokens do not open the reviewer panel")
	resp, _ = s.do(http.MethodPost, "/v1/auth/login", "", model.LoginRequest{Password: "nope"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	reviewer := s.login()

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/v1/sessions", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+reviewer)
	listResp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer listResp.Body.Close()
	var list []model.SessionSummary
	s.Require().NoError(json.NewDecoder(listResp.Body).Decode(&list))
	s.Require().Len(list, 1)
	s.Equal(id, list[0].ID)
	s.True(strings.HasSuffix(list[0].Label, id[:8]))

	resp, body := s.do(http.MethodGet, "/v1/sessions/"+id+"/table", reviewer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Len(body["top6"], 6)

	resp, _ = s.do(http.MethodGet, "/v1/sessions/"+id+"/export", reviewer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(`attachment; filename="session_`+id[:8]+`.json"`, resp.Header.Get("Content-Disposition"))

	resp, body = s.do(http.MethodPost, "/v1/sessions/"+id+"/report", reviewer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("report by gemini-report for Ann", body["report"])

	resp, body = s.do(http.MethodPost, "/v1/sessions/"+id+"/report", reviewer, model.GenerateReportRequest{Model: "gemini-2.0-flash"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("gemini-2.0-flash", body["model"])

	stored, err := s.store.Load(context.Background(), id)
	s.Require().NoError(err)
	s.Equal("report by gemini-2.0-flash for Ann", *stored.MasterReport)

	s.gen.setDown(true)
	resp, body = s.do(http.MethodPost, "/v1/sessions/"+id+"/report", reviewer, nil)
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	s.Contains(body["error"], id)

	resp, body = s.do(http.MethodGet, "/v1/sessions/c0ffee00-0000-4000-8000-000000000000", reviewer, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Contains(body["error"], "c0ffee00-0000-4000-8000-000000000000")
}

func (s *RouterSuite) TestActiveInterviewIsInvisibleToReviewer() {
	id, _ := s.start("Ann")
	reviewer := s.login()

	resp, _ := s.do(http.MethodGet, "/v1/sessions/"+id, reviewer, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestHealthAndMetrics() {
	resp, body := s.do(http.MethodGet, "/health", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])

	id, token := s.start("Ann")
	s.finish(id, token)

	resp, err := http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(raw), `neodiag_sessions_completed_total{reason="finished_early"} 1`)
	s.Contains(string(raw), "neodiag_answers_recorded_total 1")
}

func (s *RouterSuite) TestCORSPreflight() {
	resp, _ := s.do(http.MethodOptions, "/v1/sessions", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestReviewerDisabledWithoutPassword(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", strings.NewReader(`{"password":""}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("login status = %d, want 503", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body["error"], "disabled") {
		t.Fatalf("unexpected error body %v", body)
	}
}
