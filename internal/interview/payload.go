package interview

import (
	"time"

	"neodiag/internal/model"
)

const (
	topCategories   = 6
	topPerDimension = 2
)

// BuildFinalPayload assembles the terminal view of a session. It copies every
// map and slice so later edits to the session cannot leak into the payload.
func BuildFinalPayload(s *model.Session, appVersion string, ts time.Time) *model.FinalPayload {
	answers := make([]model.AnswerRecord, len(s.Answers))
	copy(answers, s.Answers)

	return &model.FinalPayload{
		Meta: model.PayloadMeta{
			Schema:        model.PayloadSchema,
			AppVersion:    appVersion,
			Timestamp:     ts,
			SessionID:     s.ID,
			Name:          s.Subject.Name,
			Contact:       s.Subject.Contact,
			Request:       s.Subject.Request,
			QuestionCount: s.QuestionCount,
			Model:         s.Model,
			StopReason:    string(s.StopReason),
		},
		Answers:         answers,
		PositionGuess:   s.PositionGuess.Clone(),
		Confidence:      s.Confidence.Clone(),
		Scores:          s.Scores.Clone(),
		DimensionScores: s.DimensionScores.Clone(),
		Top6:            TopN(s.Scores, topCategories),
	}
}

// DimensionLeaders returns the two strongest categories of every dimension in
// registry order.
func DimensionLeaders(matrix model.ScoreMatrix) []model.DimensionLeaders {
	out := make([]model.DimensionLeaders, 0, len(model.Dimensions))
	for _, d := range model.Dimensions {
		scores := matrix[d]
		if scores == nil {
			scores = model.NewScoreMap()
		}
		out = append(out, model.DimensionLeaders{Dimension: d, Top: TopN(scores, topPerDimension)})
	}
	return out
}

// BuildMasterTable is the reviewer's compact view of a DONE session.
func BuildMasterTable(s *model.Session) model.MasterTable {
	p := s.Final
	if p == nil {
		p = BuildFinalPayload(s, "", s.UpdatedAt)
	}
	return model.MasterTable{
		SessionID:     s.ID,
		PositionGuess: p.PositionGuess,
		Confidence:    p.Confidence,
		Top6:          p.Top6,
		Dimensions:    DimensionLeaders(p.DimensionScores),
	}
}
