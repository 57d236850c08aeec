package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"neodiag/internal/app"
	"neodiag/internal/config"
	"neodiag/internal/interview"
	"neodiag/internal/model"
)

// demoTurn is one scripted question with its answer and evidence.
type demoTurn struct {
	question string
	answer   string
	evidence model.EvidenceUpdate
}

type demoSubject struct {
	subject model.Subject
	turns   []demoTurn
}

var demoSubjects = []demoSubject{
	{
		subject: model.Subject{Name: "Anna", Contact: "@anna_demo", Request: "choosing between two job offers"},
		turns: []demoTurn{
			{
				question: "When a new project starts, what do you grab first?",
				answer:   "I sketch the whole plan and the people I need",
				evidence: model.EvidenceUpdate{
					ScoresDelta:     map[string]float64{"Sapphire": 0.4, "Emerald": 0.2},
					DimensionDeltas: map[string]map[string]float64{"perception": {"Sapphire": 0.5}},
					PositionGuess:   map[string]string{"p1": "Sapphire"},
					Confidence:      map[string]float64{"p1": 0.45},
					Note:            "plans before acting",
				},
			},
			{
				question: "Which part of that plan do you never delegate?",
				answer:   "Talking to the client, I need to hear them myself",
				evidence: model.EvidenceUpdate{
					ScoresDelta:     map[string]float64{"Sapphire": 0.3, "Citrine": 0.2},
					DimensionDeltas: map[string]map[string]float64{"motivation": {"Citrine": 0.4}},
					Confidence:      map[string]float64{"p1": 0.6},
				},
			},
			{
				question: "What result makes you proud at the end of a month?",
				answer:   "A team that works without me",
				evidence: model.EvidenceUpdate{
					ScoresDelta:     map[string]float64{"Emerald": 0.4},
					DimensionDeltas: map[string]map[string]float64{"result": {"Emerald": 0.5}},
					PositionGuess:   map[string]string{"p2": "Emerald"},
					Confidence:      map[string]float64{"p2": 0.4},
				},
			},
		},
	},
	{
		subject: model.Subject{Name: "Boris", Contact: "boris@example.com", Request: "burned out at work"},
		turns: []demoTurn{
			{
				question: "Which task drains you the fastest?",
				answer:   "Long meetings with no decision",
				evidence: model.EvidenceUpdate{
					ScoresDelta:     map[string]float64{"Ruby": 0.4, "Garnet": 0.3},
					DimensionDeltas: map[string]map[string]float64{"tool": {"Ruby": 0.4}},
					PositionGuess:   map[string]string{"p1": "Ruby"},
					Confidence:      map[string]float64{"p1": 0.5},
				},
			},
			{
				question: "And which one you could do for hours?",
				answer:   "Fixing something with my hands",
				evidence: model.EvidenceUpdate{
					ScoresDelta:     map[string]float64{"Garnet": 0.5, "Shungite": 0.2},
					DimensionDeltas: map[string]map[string]float64{"result": {"Garnet": 0.5}},
					Confidence:      map[string]float64{"p1": 0.7},
				},
			},
		},
	},
}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	seq := interview.NewSequencer(
		interview.Policy{MaxQuestions: cfg.Flow.MaxQuestionsTotal, StopThreshold: cfg.Flow.ConfidenceStop},
		interview.WithAppVersion(cfg.App.Version),
	)

	for _, demo := range demoSubjects {
		sess, err := replay(seq, cfg.AI.Models.Question, demo)
		if err != nil {
			return fmt.Errorf("replay %s: %w", demo.subject.Name, err)
		}
		if err := deps.SessionRepo.Save(ctx, sess); err != nil {
			return fmt.Errorf("save %s: %w", demo.subject.Name, err)
		}
		logger.Info("seeded session",
			"session_id", sess.ID,
			"name", sess.Subject.Name,
			"questions", sess.QuestionCount,
			"stop_reason", sess.StopReason,
		)
	}
	return nil
}

// replay drives a session through the real sequencer using scripted turns,
// then finishes it early.
func replay(seq *interview.Sequencer, modelID string, demo demoSubject) (*model.Session, error) {
	sess := seq.NewSession(modelID)
	if err := seq.Begin(sess, demo.subject); err != nil {
		return nil, err
	}

	for _, t := range demo.turns {
		turn, err := seq.Next(sess)
		if err != nil {
			return nil, err
		}
		if turn.Done {
			break
		}
		gen := model.Generation{
			Question: model.QuestionSpec{Question: t.question, Type: model.QuestionText, Options: []string{}},
			Evidence: t.evidence,
		}
		if _, err := seq.Offer(sess, turn.Step.ID, gen, false); err != nil {
			return nil, err
		}
		if _, err := seq.Answer(sess, turn.Step.ID, t.answer); err != nil {
			return nil, err
		}
	}

	if err := seq.Finish(sess); err != nil {
		return nil, err
	}
	return sess, nil
}
