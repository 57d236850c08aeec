package model

// QuestionType tells the presentation layer how to collect the answer.
type QuestionType string

const (
	QuestionSingle QuestionType = "single" // pick one of Options
	QuestionText   QuestionType = "text"   // free text
)

// QuestionSpec is a validated question ready to be shown to the subject
type QuestionSpec struct {
	Question string       `json:"question" bson:"question"`
	Type     QuestionType `json:"type" bson:"type"`
	Options  []string     `json:"options" bson:"options"` // empty unless Type is single
}

// EvidenceUpdate is the validated analysis bundled with a generated question.
// Maps are partial: absent keys are left untouched when the update is applied.
type EvidenceUpdate struct {
	ScoresDelta     map[string]float64            `json:"scores_delta" bson:"scoresDelta"`
	DimensionDeltas map[string]map[string]float64 `json:"col_scores_delta" bson:"dimensionDeltas"`
	PositionGuess   map[string]string             `json:"positions_guess" bson:"positionGuess"`
	Confidence      map[string]float64            `json:"confidence" bson:"confidence"`
	Note            string                        `json:"notes_for_master" bson:"note"`
}

// IsEmpty reports whether applying the update would change nothing.
func (e EvidenceUpdate) IsEmpty() bool {
	return len(e.ScoresDelta) == 0 && len(e.DimensionDeltas) == 0 &&
		len(e.PositionGuess) == 0 && len(e.Confidence) == 0
}

// Generation is one validated response of the question generator
type Generation struct {
	Question QuestionSpec   `json:"question"`
	Evidence EvidenceUpdate `json:"analysis_update"`
}

// HistoryEntry is one answered question passed back to the generator as context.
type HistoryEntry struct {
	StepID   string `json:"step_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GenerationState is the session snapshot the generator sees
type GenerationState struct {
	StepIndex       int           `json:"step_index"`
	QuestionCount   int           `json:"q_count"`
	PositionGuess   PositionGuess `json:"positions"`
	Confidence      ConfidenceMap `json:"confidence"`
	Scores          ScoreMap      `json:"scores"`
	DimensionScores ScoreMatrix   `json:"col_scores"`
}

// GenerationLimits are the flow limits echoed to the generator.
type GenerationLimits struct {
	MaxQuestionsTotal   int     `json:"max_questions_total"`
	ConfidenceStop      float64 `json:"confidence_stop"`
	MaxFollowupsPerStep int     `json:"max_followups_per_step"`
}

// GenerationRequest is the structured request sent to the question generator.
type GenerationRequest struct {
	Mode        string           `json:"mode"`
	StepID      string           `json:"step_id"`
	StepGoal    string           `json:"step_goal"`
	Client      Subject          `json:"client"`
	State       GenerationState  `json:"state"`
	HistoryTail []HistoryEntry   `json:"history_tail"`
	Limits      GenerationLimits `json:"limits"`
}
