package model

// Category is one of the nine potential labels a position slot resolves to.
// The engine treats the labels as opaque identifiers.
type Category string

const (
	Sapphire Category = "Sapphire"
	Heliodor Category = "Heliodor"
	Amethyst Category = "Amethyst"
	Emerald  Category = "Emerald"
	Garnet   Category = "Garnet"
	Ruby     Category = "Ruby"
	Amber    Category = "Amber"
	Shungite Category = "Shungite"
	Citrine  Category = "Citrine"
)

// Categories is the fixed category set in canonical order. Ranking ties are
// broken by position in this slice.
var Categories = []Category{
	Sapphire, Heliodor, Amethyst, Emerald, Garnet, Ruby, Amber, Shungite, Citrine,
}

// Dimension is one of the four axes evidence is tallied along.
type Dimension string

const (
	DimensionPerception Dimension = "perception"
	DimensionMotivation Dimension = "motivation"
	DimensionTool       Dimension = "tool"
	DimensionResult     Dimension = "result"
)

// Dimensions is the fixed dimension set in canonical order.
var Dimensions = []Dimension{
	DimensionPerception, DimensionMotivation, DimensionTool, DimensionResult,
}

// Slot identifies one of the three positions diagnosed in a session.
type Slot string

const (
	SlotP1 Slot = "p1"
	SlotP2 Slot = "p2"
	SlotP3 Slot = "p3"
)

// Slots is the fixed slot set in canonical order.
var Slots = []Slot{SlotP1, SlotP2, SlotP3}

// IsCategory reports whether label belongs to the fixed category set.
func IsCategory(label string) bool {
	for _, c := range Categories {
		if string(c) == label {
			return true
		}
	}
	return false
}

// IsDimension reports whether name belongs to the fixed dimension set.
func IsDimension(name string) bool {
	for _, d := range Dimensions {
		if string(d) == name {
			return true
		}
	}
	return false
}

// IsSlot reports whether name is one of p1, p2, p3.
func IsSlot(name string) bool {
	for _, s := range Slots {
		if string(s) == name {
			return true
		}
	}
	return false
}
