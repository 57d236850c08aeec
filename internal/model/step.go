package model

// Phase separates the two halves of questioning for one position.
type Phase string

const (
	PhaseScope     Phase = "scope"     // narrow down the sphere / perception type
	PhasePotential Phase = "potential" // narrow down to a concrete potential
)

// Step is one entry of the fixed interview plan
type Step struct {
	ID       string `json:"id"`
	Position Slot   `json:"position"`
	Phase    Phase  `json:"phase"`
	Sequence int    `json:"sequence"` // 1..2 within the phase
	Title    string `json:"title"`
	Goal     string `json:"goal"` // passed to the question generator
}

// Two scope questions then two potential questions per position.
var stepPlan = []Step{
	{ID: "p1_scope_1", Position: SlotP1, Phase: PhaseScope, Sequence: 1, Title: "Position 1: scope (1/2)", Goal: "determine the sphere and perception type of position 1"},
	{ID: "p1_scope_2", Position: SlotP1, Phase: PhaseScope, Sequence: 2, Title: "Position 1: scope (2/2)", Goal: "confirm the sphere of position 1"},
	{ID: "p1_pot_1", Position: SlotP1, Phase: PhasePotential, Sequence: 1, Title: "Position 1: potential (1/2)", Goal: "narrow position 1 down to a concrete potential"},
	{ID: "p1_pot_2", Position: SlotP1, Phase: PhasePotential, Sequence: 2, Title: "Position 1: potential (2/2)", Goal: "fix the potential of position 1"},

	{ID: "p2_scope_1", Position: SlotP2, Phase: PhaseScope, Sequence: 1, Title: "Position 2: scope (1/2)", Goal: "determine the sphere of position 2"},
	{ID: "p2_scope_2", Position: SlotP2, Phase: PhaseScope, Sequence: 2, Title: "Position 2: scope (2/2)", Goal: "confirm the sphere of position 2"},
	{ID: "p2_pot_1", Position: SlotP2, Phase: PhasePotential, Sequence: 1, Title: "Position 2: potential (1/2)", Goal: "narrow position 2 down to a concrete potential"},
	{ID: "p2_pot_2", Position: SlotP2, Phase: PhasePotential, Sequence: 2, Title: "Position 2: potential (2/2)", Goal: "fix the potential of position 2"},

	{ID: "p3_scope_1", Position: SlotP3, Phase: PhaseScope, Sequence: 1, Title: "Position 3: scope (1/2)", Goal: "determine the sphere of position 3"},
	{ID: "p3_scope_2", Position: SlotP3, Phase: PhaseScope, Sequence: 2, Title: "Position 3: scope (2/2)", Goal: "confirm the sphere of position 3"},
	{ID: "p3_pot_1", Position: SlotP3, Phase: PhasePotential, Sequence: 1, Title: "Position 3: potential (1/2)", Goal: "narrow position 3 down to a concrete potential"},
	{ID: "p3_pot_2", Position: SlotP3, Phase: PhasePotential, Sequence: 2, Title: "Position 3: potential (2/2)", Goal: "fix the potential of position 3"},
}

// StepPlan returns a copy of the fixed interview plan.
func StepPlan() []Step {
	out := make([]Step, len(stepPlan))
	copy(out, stepPlan)
	return out
}

// StepCount is the length of the plan.
func StepCount() int {
	return len(stepPlan)
}

// CurrentStep looks up the step at index. The second result is false once
// the index runs past the end of the plan, which callers treat as the plan
// being exhausted rather than as an error.
func CurrentStep(index int) (Step, bool) {
	if index < 0 || index >= len(stepPlan) {
		return Step{}, false
	}
	return stepPlan[index], true
}
