package interview

import (
	"fmt"
	"strings"

	"neodiag/internal/model"
)

var dimensionLabels = map[model.Dimension]string{
	model.DimensionPerception: "How you perceive the world",
	model.DimensionMotivation: "What really motivates you",
	model.DimensionTool:       "Which tool you reach for",
	model.DimensionResult:     "What result you usually deliver",
}

// signalStrength describes a dimension without naming categories.
func signalStrength(scores model.ScoreMap) string {
	top := TopN(scores, topPerDimension)
	switch {
	case len(top) < 2 || top[0].Score <= 0:
		return "no clear signal yet (to be clarified at the session)"
	case top[1].Score <= 0:
		return "one pronounced direction (to be clarified at the session)"
	default:
		return "pronounced signals in two directions (to be clarified at the session)"
	}
}

// ClientReport renders the preliminary report shown to the subject once the
// interview is done. Category names never appear in it.
func ClientReport(s *model.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**, here is your **preliminary report**.\n\n", s.Subject.Name)
	if s.Subject.Request != "" {
		fmt.Fprintf(&b, "**Request:** %s\n\n", s.Subject.Request)
	}
	fmt.Fprintf(&b, "**Answers given:** %d\n\n", s.QuestionCount)

	b.WriteString("**Four dimensions:**\n")
	for _, d := range model.Dimensions {
		scores := s.DimensionScores[d]
		if scores == nil {
			scores = model.NewScoreMap()
		}
		fmt.Fprintf(&b, "- **%s**: %s.\n", dimensionLabels[d], signalStrength(scores))
	}

	b.WriteString("\n**Next step:**\n")
	b.WriteString("To fix your potentials by position and get the full report with a plan, book a session with a master.")
	if s.Subject.Contact != "" {
		fmt.Fprintf(&b, " We will reach you at %s.", s.Subject.Contact)
	}
	b.WriteString("\n")
	return b.String()
}
