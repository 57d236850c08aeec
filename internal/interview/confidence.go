package interview

import (
	"slices"

	"neodiag/internal/model"
)

// ApplyConfidence overwrites the confidence of every known slot present in
// update. Values are stored as given; the [0,1] range is not enforced.
func ApplyConfidence(conf model.ConfidenceMap, update map[string]float64) []string {
	var dropped []string
	for key, v := range update {
		if !model.IsSlot(key) {
			dropped = append(dropped, key)
			continue
		}
		conf[model.Slot(key)] = v
	}
	slices.Sort(dropped)
	return dropped
}

// ApplyPositionGuess overwrites the guess of every known slot whose incoming
// label is non-empty. Labels are free-form and kept verbatim.
func ApplyPositionGuess(guess model.PositionGuess, update map[string]string) []string {
	var dropped []string
	for key, label := range update {
		if !model.IsSlot(key) {
			dropped = append(dropped, key)
			continue
		}
		if label == "" {
			continue
		}
		guess[model.Slot(key)] = label
	}
	slices.Sort(dropped)
	return dropped
}

// Policy holds the termination limits of an interview.
type Policy struct {
	MaxQuestions  int
	StopThreshold float64
}

// DefaultPolicy matches the stock flow configuration.
var DefaultPolicy = Policy{MaxQuestions: 24, StopThreshold: 0.78}

// Evaluate applies the stop predicate at a step boundary. The checks run in
// priority order: question budget, then all slots at or above the threshold,
// then plan exhaustion. It returns false when questioning should continue.
func (p Policy) Evaluate(s *model.Session) (model.StopReason, bool) {
	if s.QuestionCount >= p.MaxQuestions {
		return model.StopBudget, true
	}
	if p.confident(s.Confidence) {
		return model.StopConfidence, true
	}
	if s.StepIndex >= model.StepCount() {
		return model.StopPlan, true
	}
	return "", false
}

func (p Policy) confident(conf model.ConfidenceMap) bool {
	for _, slot := range model.Slots {
		if conf[slot] < p.StopThreshold {
			return false
		}
	}
	return true
}
