package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"neodiag/internal/config"
	"neodiag/internal/interview"
	"neodiag/internal/metrics"
	"neodiag/internal/model"
)

var (
	ErrGeneratorUnavailable = errors.New("question generator unavailable")
	ErrReportUnavailable    = errors.New("report generator unavailable")
	errEmptyResponse        = errors.New("empty response from Gemini")
)

const (
	purposeQuestion = "question"
	purposeReport   = "report"

	generationMode = "client_interview"
	retryBackoff   = 500 * time.Millisecond
)

// GeneratedQuestion is one decoded generator reply. Fallback is set when the
// reply could not be read and the neutral question was substituted.
type GeneratedQuestion struct {
	Generation model.Generation
	Issues     []interview.Issue
	Fallback   bool
}

// QuestionGenerator produces the next question with its evidence update.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, req model.GenerationRequest) (GeneratedQuestion, error)
	QuestionModel() string
}

// ReportGenerator writes the reviewer narrative for a final payload.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, modelName string, payload *model.FinalPayload) (string, error)
	ResolveReportModel(requested string) string
}

// contentGenerator is the slice of *genai.Models the service calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeneratorService handles question and report generation via Gemini
type GeneratorService struct {
	config    *config.AIConfig
	models    contentGenerator
	knowledge string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type GeneratorOption func(*GeneratorService)

func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(s *GeneratorService) {
		s.logger = logger
	}
}

func WithGeneratorMetrics(m *metrics.Metrics) GeneratorOption {
	return func(s *GeneratorService) {
		s.metrics = m
	}
}

func withContentGenerator(models contentGenerator) GeneratorOption {
	return func(s *GeneratorService) {
		s.models = models
	}
}

// NewGeneratorService creates the Gemini client when an API key is configured.
// Without a key the service reports ErrGeneratorUnavailable on every call.
func NewGeneratorService(ctx context.Context, cfg *config.AIConfig, knowledge string, opts ...GeneratorOption) (*GeneratorService, error) {
	s := &GeneratorService{
		config:    cfg,
		knowledge: knowledge,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.models == nil && cfg.IsEnabled() {
		cli, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		s.models = cli.Models
	}
	return s, nil
}

func (s *GeneratorService) QuestionModel() string { return s.config.Models.Question }

// ResolveReportModel falls back to the configured report model for blank or
// unsupported names.
func (s *GeneratorService) ResolveReportModel(requested string) string {
	return s.config.ResolveModel(requested, s.config.Models.Report)
}

// GenerateQuestion asks for the next question. Transport failures return
// ErrGeneratorUnavailable; an unreadable reply becomes the fallback question.
func (s *GeneratorService) GenerateQuestion(ctx context.Context, req model.GenerationRequest) (GeneratedQuestion, error) {
	if s.models == nil {
		return GeneratedQuestion{}, ErrGeneratorUnavailable
	}
	req.Mode = generationMode

	input, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return GeneratedQuestion{}, fmt.Errorf("encode generation request: %w", err)
	}
	prompt := s.buildQuestionPrompt(string(input))

	raw, err := s.call(ctx, purposeQuestion, s.config.Models.Question, prompt, "application/json")
	if err != nil {
		return GeneratedQuestion{}, fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
	}

	gen, issues, err := interview.DecodeGeneration(raw)
	if err != nil {
		var perr *interview.ParseError
		if errors.As(err, &perr) {
			s.logger.Warn("generator reply unreadable, using fallback question",
				"step_id", req.StepID,
				"excerpt", perr.Excerpt,
				"error", perr.Err,
			)
		}
		s.metrics.IncrementFallback()
		return GeneratedQuestion{Generation: gen, Fallback: true}, nil
	}
	if len(issues) > 0 {
		reasons := make([]string, len(issues))
		for i, issue := range issues {
			reasons[i] = issue.String()
		}
		s.logger.Warn("generator reply had invalid fields", "step_id", req.StepID, "issues", reasons)
	}
	return GeneratedQuestion{Generation: gen, Issues: issues}, nil
}

// GenerateReport writes the master report for a finished session.
func (s *GeneratorService) GenerateReport(ctx context.Context, modelName string, payload *model.FinalPayload) (string, error) {
	if s.models == nil {
		return "", ErrReportUnavailable
	}
	if payload == nil {
		return "", fmt.Errorf("%w: no final payload", ErrReportUnavailable)
	}
	modelName = s.ResolveReportModel(modelName)

	input, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode final payload: %w", err)
	}

	text, err := s.call(ctx, purposeReport, modelName, reportPrompt+"\n\n[SESSION JSON]\n"+string(input), "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportUnavailable, err)
	}
	return strings.TrimSpace(text), nil
}

// call runs one generation with the configured timeout, retrying transport
// errors up to MaxAttempts times.
func (s *GeneratorService) call(ctx context.Context, purpose, modelName, prompt, mimeType string) (string, error) {
	attempts := max(s.config.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		text, err := s.callOnce(ctx, modelName, prompt, mimeType)
		s.metrics.ObserveGenerator(purpose, time.Since(start), err)
		if err == nil {
			return text, nil
		}
		lastErr = err
		s.logger.Warn("generator call failed",
			"purpose", purpose,
			"model", modelName,
			"attempt", attempt,
			"error", err,
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return "", lastErr
}

func (s *GeneratorService) callOnce(ctx context.Context, modelName, prompt, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout())
	defer cancel()

	var cfg *genai.GenerateContentConfig
	if mimeType != "" {
		cfg = &genai.GenerateContentConfig{ResponseMIMEType: mimeType}
	}
	resp, err := s.models.GenerateContent(ctx, modelName,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		cfg,
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errEmptyResponse
	}
	return b.String(), nil
}

func (s *GeneratorService) buildQuestionPrompt(input string) string {
	categories := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		categories[i] = string(c)
	}
	dimensions := make([]string, len(model.Dimensions))
	for i, d := range model.Dimensions {
		dimensions[i] = string(d)
	}
	slots := make([]string, len(model.Slots))
	for i, p := range model.Slots {
		slots[i] = string(p)
	}

	return fmt.Sprintf(`You are an interviewer for the "Potentials" method. Conduct the interview strictly step by step and return one question with answer options when they fit.

RULES:
1) At most one follow-up question per step.
2) Every question is about an everyday, concrete situation.
3) When possible give 4 short options and always add "Other (in my own words)" last.
4) Never reveal category names to the client.
5) Always return strictly JSON in the schema below.

Allowed categories: %s
Allowed dimensions: %s
Allowed position slots: %s

KNOWLEDGE BASE:
---BEGIN KNOWLEDGE---
%s
---END KNOWLEDGE---

Return JSON:
{
  "question": "string",
  "type": "single" | "text",
  "options": ["..."],
  "analysis_update": {
    "scores_delta": {"<category>": number},
    "col_scores_delta": {"<dimension>": {"<category>": number}},
    "positions_guess": {"<slot>": "<category>"},
    "confidence": {"<slot>": number between 0 and 1},
    "notes_for_master": "short note"
  }
}

[INPUT JSON]
%s`,
		strings.Join(categories, ", "),
		strings.Join(dimensions, ", "),
		strings.Join(slots, ", "),
		s.knowledge,
		input,
	)
}

const reportPrompt = `You are a master diagnostician. Write a MASTER REPORT with this structure:
1) Position table: P1/P2/P3 (category and a short marker)
2) Dimensions perception/motivation/tool/result: top-2 categories and why
3) Conflicts and shifts
4) 6 short clarifying questions
5) Recommendations for realisation and monetisation that fit the client's request
Be concrete.`
