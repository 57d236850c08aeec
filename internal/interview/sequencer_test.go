package interview

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"neodiag/internal/model"
)

type SequencerSuite struct {
	suite.Suite
	seq *Sequencer
	now time.Time
}

func TestSequencerSuite(t *testing.T) {
	suite.Run(t, new(SequencerSuite))
}

func (s *SequencerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.seq = NewSequencer(DefaultPolicy,
		WithAppVersion("test"),
		WithClock(func() time.Time {
			s.now = s.now.Add(time.Second)
			return s.now
		}),
	)
}

func (s *SequencerSuite) started() *model.Session {
	sess := s.seq.NewSession("gemini-test")
	s.Require().NoError(s.seq.Begin(sess, model.Subject{Name: "A", Request: "career"}))
	return sess
}

// ask runs one full step: next turn, offer a question, answer it.
func (s *SequencerSuite) ask(sess *model.Session, ev model.EvidenceUpdate, answer string) model.Step {
	turn, err := s.seq.Next(sess)
	s.Require().NoError(err)
	s.Require().False(turn.Done)
	s.Require().Nil(turn.Pending)

	gen := model.Generation{
		Question: model.QuestionSpec{Question: "question for " + turn.Step.ID, Type: model.QuestionText, Options: []string{}},
		Evidence: ev,
	}
	_, err = s.seq.Offer(sess, turn.Step.ID, gen, false)
	s.Require().NoError(err)

	_, err = s.seq.Answer(sess, turn.Step.ID, answer)
	s.Require().NoError(err)
	s.Equal(len(sess.Answers), sess.QuestionCount)
	return turn.Step
}

func (s *SequencerSuite) TestBegin() {
	s.Run("moves intake to questioning and resets progress", func() {
		sess := s.seq.NewSession("m")
		sess.StepIndex = 3
		sess.QuestionCount = 2
		sess.Answers = []model.AnswerRecord{{StepID: "x"}, {StepID: "y"}}

		err := s.seq.Begin(sess, model.Subject{Name: "  Ann ", Contact: "ann@example.com", Request: "career"})
		s.Require().NoError(err)
		s.Equal(model.SessionQuestioning, sess.Status)
		s.Equal("Ann", sess.Subject.Name)
		s.Zero(sess.StepIndex)
		s.Zero(sess.QuestionCount)
		s.Empty(sess.Answers)
	})

	s.Run("requires a name", func() {
		sess := s.seq.NewSession("m")
		err := s.seq.Begin(sess, model.Subject{Name: "   "})
		s.Require().ErrorIs(err, ErrMissingName)
		s.Equal(model.SessionIntake, sess.Status)
	})

	s.Run("never runs twice", func() {
		sess := s.started()
		err := s.seq.Begin(sess, model.Subject{Name: "B"})
		s.Require().ErrorIs(err, ErrInvalidTransition)
	})
}

func (s *SequencerSuite) TestNextFromIntake() {
	sess := s.seq.NewSession("m")
	_, err := s.seq.Next(sess)
	s.Require().ErrorIs(err, ErrInvalidTransition)
}

func (s *SequencerSuite) TestStepCycle() {
	s.Run("walks the plan in order", func() {
		sess := s.started()
		plan := model.StepPlan()
		for i := 0; i < 3; i++ {
			step := s.ask(sess, model.EvidenceUpdate{}, "answer")
			s.Equal(plan[i].ID, step.ID)
		}
		s.Equal(3, sess.StepIndex)
		s.Equal(3, sess.QuestionCount)
		s.Equal("p1_scope_1", sess.Answers[0].StepID)
		s.Equal("question for p1_scope_1", sess.Answers[0].Question)
	})

	s.Run("pending question is returned again without regeneration", func() {
		sess := s.started()
		turn, err := s.seq.Next(sess)
		s.Require().NoError(err)
		pending, err := s.seq.Offer(sess, turn.Step.ID, FallbackGeneration(), true)
		s.Require().NoError(err)

		again, err := s.seq.Next(sess)
		s.Require().NoError(err)
		s.Same(pending, again.Pending)
		s.Equal(turn.Step.ID, again.Step.ID)

		_, err = s.seq.Offer(sess, turn.Step.ID, FallbackGeneration(), false)
		s.Require().ErrorIs(err, ErrQuestionPending)
	})

	s.Run("offer for the wrong step is rejected", func() {
		sess := s.started()
		_, err := s.seq.Offer(sess, "p2_pot_2", FallbackGeneration(), false)
		s.Require().ErrorIs(err, ErrStepMismatch)
		s.Nil(sess.Pending)
	})

	s.Run("answer without pending question", func() {
		sess := s.started()
		_, err := s.seq.Answer(sess, "", "hello")
		s.Require().ErrorIs(err, ErrNoPendingQuestion)
	})

	s.Run("answer for another step is rejected", func() {
		sess := s.started()
		turn, _ := s.seq.Next(sess)
		_, err := s.seq.Offer(sess, turn.Step.ID, FallbackGeneration(), false)
		s.Require().NoError(err)

		_, err = s.seq.Answer(sess, "p1_pot_1", "hello")
		s.Require().ErrorIs(err, ErrStepMismatch)
		s.NotNil(sess.Pending)
		s.Zero(sess.QuestionCount)
	})
}

func (s *SequencerSuite) TestBlankAnswerChangesNothing() {
	sess := s.started()
	turn, err := s.seq.Next(sess)
	s.Require().NoError(err)
	_, err = s.seq.Offer(sess, turn.Step.ID, model.Generation{
		Question: model.QuestionSpec{Question: "q", Type: model.QuestionText},
		Evidence: model.EvidenceUpdate{ScoresDelta: map[string]float64{"Ruby": 1}},
	}, false)
	s.Require().NoError(err)
	before := *sess

	for _, blank := range []string{"", "   ", "\n\t"} {
		_, err = s.seq.Answer(sess, turn.Step.ID, blank)
		s.Require().ErrorIs(err, ErrBlankAnswer)
	}

	s.Equal(before.StepIndex, sess.StepIndex)
	s.Equal(before.QuestionCount, sess.QuestionCount)
	s.Empty(sess.Answers)
	s.Zero(sess.Scores[model.Ruby])
	s.NotNil(sess.Pending)
}

func (s *SequencerSuite) TestEvidenceAppliedOnAnswer() {
	sess := s.started()
	ev := model.EvidenceUpdate{
		ScoresDelta:     map[string]float64{"Ruby": 0.5, "Onyx": 1},
		DimensionDeltas: map[string]map[string]float64{"tool": {"Ruby": 0.2}, "soul": {"Ruby": 1}},
		PositionGuess:   map[string]string{"p1": "Ruby"},
		Confidence:      map[string]float64{"p1": 0.4},
		Note:            "leans to action",
	}

	turn, _ := s.seq.Next(sess)
	_, err := s.seq.Offer(sess, turn.Step.ID, model.Generation{Question: model.QuestionSpec{Question: "q"}, Evidence: ev}, false)
	s.Require().NoError(err)
	d, err := s.seq.Answer(sess, turn.Step.ID, "I act first")
	s.Require().NoError(err)

	s.Equal(2, d.Count())
	s.Equal([]string{"Onyx"}, d.Scores)
	s.Equal([]string{"soul"}, d.Dimensions)
	s.Equal(0.5, sess.Scores[model.Ruby])
	s.Equal(0.2, sess.DimensionScores[model.DimensionTool][model.Ruby])
	s.Equal("Ruby", sess.PositionGuess[model.SlotP1])
	s.Equal(0.4, sess.Confidence[model.SlotP1])
	s.Nil(sess.Pending)
}

func (s *SequencerSuite) TestStopNotCheckedMidStep() {
	sess := s.started()
	turn, _ := s.seq.Next(sess)
	_, err := s.seq.Offer(sess, turn.Step.ID, FallbackGeneration(), false)
	s.Require().NoError(err)

	// Budget already spent while a question is on screen.
	sess.QuestionCount = 24
	sess.Answers = make([]model.AnswerRecord, 24)

	again, err := s.seq.Next(sess)
	s.Require().NoError(err)
	s.False(again.Done)
	s.NotNil(again.Pending)
	s.Equal(model.SessionQuestioning, sess.Status)
}

func (s *SequencerSuite) TestForcedFinishDiscardsPending() {
	sess := s.started()
	for i := 0; i < 5; i++ {
		s.ask(sess, model.EvidenceUpdate{ScoresDelta: map[string]float64{"Amber": 0.1}}, "answer")
	}
	turn, err := s.seq.Next(sess)
	s.Require().NoError(err)
	_, err = s.seq.Offer(sess, turn.Step.ID, model.Generation{
		Question: model.QuestionSpec{Question: "unanswered"},
		Evidence: model.EvidenceUpdate{ScoresDelta: map[string]float64{"Amber": 10}},
	}, false)
	s.Require().NoError(err)

	s.Require().NoError(s.seq.Finish(sess))

	s.Equal(model.SessionDone, sess.Status)
	s.Equal(model.StopForced, sess.StopReason)
	s.Len(sess.Answers, 5)
	s.Equal(5, sess.QuestionCount)
	s.Nil(sess.Pending)
	s.InDelta(0.5, sess.Scores[model.Amber], 1e-9)
	s.Require().NotNil(sess.Final)
	s.Len(sess.Final.Answers, 5)
	s.NotNil(sess.CompletedAt)

	s.Run("finish is idempotent once done", func() {
		final := sess.Final
		s.Require().NoError(s.seq.Finish(sess))
		s.Same(final, sess.Final)
		s.Equal(model.StopForced, sess.StopReason)
	})

	s.Run("done is terminal", func() {
		turn, err := s.seq.Next(sess)
		s.Require().NoError(err)
		s.True(turn.Done)
		_, err = s.seq.Offer(sess, "p1_scope_1", FallbackGeneration(), false)
		s.ErrorIs(err, ErrInvalidTransition)
		_, err = s.seq.Answer(sess, "", "late")
		s.ErrorIs(err, ErrInvalidTransition)
		s.Len(sess.Answers, 5)
	})
}

func (s *SequencerSuite) TestTimestampsKeepMilliseconds() {
	s.now = s.now.Add(987654321 * time.Nanosecond)
	sess := s.started()
	s.ask(sess, model.EvidenceUpdate{}, "answer")
	s.Require().NoError(s.seq.Finish(sess))

	stamps := []time.Time{sess.CreatedAt, sess.UpdatedAt, *sess.CompletedAt, sess.Answers[0].Timestamp, sess.Final.Meta.Timestamp}
	for _, ts := range stamps {
		s.Equal(ts.Truncate(time.Millisecond), ts)
		s.Equal(time.UTC, ts.Location())
	}
	s.Equal(987000000, sess.CreatedAt.Nanosecond())
}

func (s *SequencerSuite) TestHugeDeltasKeepSessionEncodable() {
	sess := s.started()
	huge := model.EvidenceUpdate{
		ScoresDelta:     map[string]float64{"Ruby": 1e308},
		DimensionDeltas: map[string]map[string]float64{"tool": {"Ruby": 1e308}},
	}
	s.ask(sess, huge, "first")

	turn, err := s.seq.Next(sess)
	s.Require().NoError(err)
	_, err = s.seq.Offer(sess, turn.Step.ID, model.Generation{Question: model.QuestionSpec{Question: "again"}, Evidence: huge}, false)
	s.Require().NoError(err)
	dropped, err := s.seq.Answer(sess, turn.Step.ID, "second")
	s.Require().NoError(err)

	s.Equal([]string{"Ruby"}, dropped.Scores)
	s.Equal([]string{"tool.Ruby"}, dropped.Dimensions)
	s.Equal(2, sess.QuestionCount)
	_, err = json.Marshal(sess)
	s.NoError(err)
}

func (s *SequencerSuite) TestFinishFromIntake() {
	sess := s.seq.NewSession("m")
	s.Require().ErrorIs(s.seq.Finish(sess), ErrInvalidTransition)
	s.Equal(model.SessionIntake, sess.Status)
}

func (s *SequencerSuite) TestPlanExhausted() {
	sess := s.started()
	for i := 0; i < model.StepCount(); i++ {
		s.ask(sess, model.EvidenceUpdate{}, "answer")
	}
	s.Equal(model.StepCount(), sess.StepIndex)

	turn, err := s.seq.Next(sess)
	s.Require().NoError(err)
	s.True(turn.Done)
	s.Equal(model.StopPlan, turn.StopReason)
	s.Equal(12, sess.QuestionCount)
}

func (s *SequencerSuite) TestBudgetStop() {
	s.seq = NewSequencer(Policy{MaxQuestions: 3, StopThreshold: 0.78})
	sess := s.started()
	for i := 0; i < 3; i++ {
		s.ask(sess, model.EvidenceUpdate{}, "answer")
	}
	turn, err := s.seq.Next(sess)
	s.Require().NoError(err)
	s.True(turn.Done)
	s.Equal(model.StopBudget, turn.StopReason)
	s.Equal(3, sess.StepIndex)
}

// Confidence reaches 0.9 on every slot by the ninth answer, so the last three
// scripted answers are never asked.
func scriptedEvidence() []model.EvidenceUpdate {
	script := make([]model.EvidenceUpdate, 12)
	for i := range script {
		script[i] = model.EvidenceUpdate{
			ScoresDelta:     map[string]float64{"Ruby": 0.3, "Amethyst": 0.1},
			DimensionDeltas: map[string]map[string]float64{"motivation": {"Ruby": 0.2}},
		}
	}
	script[3].Confidence = map[string]float64{"p1": 0.9}
	script[3].PositionGuess = map[string]string{"p1": "Ruby"}
	script[6].Confidence = map[string]float64{"p2": 0.6}
	script[7].Confidence = map[string]float64{"p2": 0.9}
	script[7].PositionGuess = map[string]string{"p2": "Amethyst"}
	script[8].Confidence = map[string]float64{"p3": 0.9}
	script[8].PositionGuess = map[string]string{"p3": "Citrine"}
	return script
}

func (s *SequencerSuite) TestEndToEndStopsOnConfidence() {
	sess := s.seq.NewSession("m")
	s.Require().NoError(s.seq.Begin(sess, model.Subject{Name: "A", Request: "career"}))

	asked := 0
	for _, ev := range scriptedEvidence() {
		turn, err := s.seq.Next(sess)
		s.Require().NoError(err)
		if turn.Done {
			break
		}
		_, err = s.seq.Offer(sess, turn.Step.ID, model.Generation{Question: model.QuestionSpec{Question: "q"}, Evidence: ev}, false)
		s.Require().NoError(err)
		_, err = s.seq.Answer(sess, turn.Step.ID, "scripted answer")
		s.Require().NoError(err)
		asked++
	}

	s.Equal(9, asked)
	s.Equal(model.SessionDone, sess.Status)
	s.Equal(model.StopConfidence, sess.StopReason)
	s.Equal(9, sess.QuestionCount)
	s.Equal(9, sess.StepIndex)
	s.Len(sess.Answers, 9)
	s.Equal("Citrine", sess.PositionGuess[model.SlotP3])
	s.Require().NotNil(sess.Final)
	s.Equal(model.Ruby, sess.Final.Top6[0].Category)
}

func (s *SequencerSuite) TestReplayIsDeterministic() {
	run := func() *model.Session {
		sess := s.started()
		for _, ev := range scriptedEvidence()[:7] {
			s.ask(sess, ev, "same answer")
		}
		return sess
	}

	a, b := run(), run()
	s.Equal(a.Scores, b.Scores)
	s.Equal(a.DimensionScores, b.DimensionScores)
	s.Equal(a.Confidence, b.Confidence)
	s.Equal(a.PositionGuess, b.PositionGuess)
}
