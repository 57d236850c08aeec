package interview

import (
	"math"
	"slices"
	"sort"

	"neodiag/internal/model"
)

// ApplyScoreDelta adds every delta whose key is a known category to scores.
// Keys outside the fixed category set never enter the map, and neither does a
// delta that would leave the score infinite or NaN. Both are returned in
// sorted order so the caller can log them.
func ApplyScoreDelta(scores model.ScoreMap, deltas map[string]float64) []string {
	var dropped []string
	for key, delta := range deltas {
		if !model.IsCategory(key) {
			dropped = append(dropped, key)
			continue
		}
		sum := scores[model.Category(key)] + delta
		if math.IsInf(sum, 0) || math.IsNaN(sum) {
			dropped = append(dropped, key)
			continue
		}
		scores[model.Category(key)] = sum
	}
	slices.Sort(dropped)
	return dropped
}

// ApplyDimensionDelta applies deltas to one dimension of matrix. An unknown
// dimension drops the whole update and is reported as its bare name; unknown
// categories are reported as "dimension.category".
func ApplyDimensionDelta(matrix model.ScoreMatrix, dimension string, deltas map[string]float64) []string {
	if !model.IsDimension(dimension) {
		return []string{dimension}
	}
	d := model.Dimension(dimension)
	if matrix[d] == nil {
		matrix[d] = model.NewScoreMap()
	}
	dropped := ApplyScoreDelta(matrix[d], deltas)
	for i := range dropped {
		dropped[i] = dimension + "." + dropped[i]
	}
	return dropped
}

// TopN ranks scores descending and returns at most n entries. Ties keep the
// registry order, so repeated calls on the same map return the same slice.
func TopN(scores model.ScoreMap, n int) []model.RankedCategory {
	if n < 0 {
		n = 0
	}
	ranked := make([]model.RankedCategory, 0, len(model.Categories))
	for _, c := range model.Categories {
		ranked = append(ranked, model.RankedCategory{Category: c, Score: scores[c]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
