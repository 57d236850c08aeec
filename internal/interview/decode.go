package interview

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"neodiag/internal/model"
)

// FallbackQuestion is shown when the generator returns something unusable.
const FallbackQuestion = "Could not read the next question. Please describe in your own words what matters most to you in this situation."

var errMissingQuestion = errors.New("question text is missing")

// ParseError reports a generator response that could not be used at all.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unusable generator response %q: %v", e.Excerpt, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Issue is one field of a generator response that was coerced or skipped.
type Issue struct {
	Field  string
	Reason string
}

func (i Issue) String() string {
	return i.Field + ": " + i.Reason
}

// FallbackGeneration is a neutral free-text question with an empty update.
func FallbackGeneration() model.Generation {
	return model.Generation{
		Question: model.QuestionSpec{
			Question: FallbackQuestion,
			Type:     model.QuestionText,
			Options:  []string{},
		},
	}
}

// DecodeGeneration validates a raw generator response. Individual bad fields
// are coerced or skipped and reported as issues. When the body is not a JSON
// object or carries no question text, it returns FallbackGeneration together
// with a *ParseError.
func DecodeGeneration(raw string) (model.Generation, []Issue, error) {
	body := extractObject(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		if err == nil {
			err = errors.New("response is not a JSON object")
		}
		return FallbackGeneration(), nil, &ParseError{Excerpt: excerpt(raw), Err: err}
	}

	var issues []Issue
	text, _ := doc["question"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackGeneration(), nil, &ParseError{Excerpt: excerpt(raw), Err: errMissingQuestion}
	}

	q := model.QuestionSpec{Question: text}
	q.Options, issues = decodeOptions(doc["options"], issues)
	q.Type, q.Options, issues = coerceType(doc["type"], q.Options, issues)

	var ev model.EvidenceUpdate
	update, ok := doc["analysis_update"].(map[string]any)
	if !ok && doc["analysis_update"] != nil {
		issues = append(issues, Issue{Field: "analysis_update", Reason: "not an object"})
	}
	if ok {
		ev, issues = decodeEvidence(update, issues)
	}

	return model.Generation{Question: q, Evidence: ev}, issues, nil
}

// extractObject strips a markdown code fence and anything outside the
// outermost braces.
func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// excerpt keeps the first 120 runes of raw for logging.
func excerpt(raw string) string {
	const limit = 120
	raw = strings.TrimSpace(raw)
	n := 0
	for i := range raw {
		if n == limit {
			return raw[:i] + "..."
		}
		n++
	}
	return raw
}

func decodeOptions(v any, issues []Issue) ([]string, []Issue) {
	out := []string{}
	if v == nil {
		return out, issues
	}
	list, ok := v.([]any)
	if !ok {
		return out, append(issues, Issue{Field: "options", Reason: "not a list"})
	}
	for i, item := range list {
		if _, isBool := item.(bool); isBool {
			issues = append(issues, Issue{Field: fmt.Sprintf("options[%d]", i), Reason: "not text"})
			continue
		}
		s, err := cast.ToStringE(item)
		if err != nil {
			issues = append(issues, Issue{Field: fmt.Sprintf("options[%d]", i), Reason: "not text"})
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, issues
}

func coerceType(v any, options []string, issues []Issue) (model.QuestionType, []string, []Issue) {
	tag, _ := v.(string)
	switch model.QuestionType(strings.ToLower(strings.TrimSpace(tag))) {
	case model.QuestionSingle:
		if len(options) == 0 {
			return model.QuestionText, []string{}, append(issues, Issue{Field: "type", Reason: "single without options, using text"})
		}
		return model.QuestionSingle, options, issues
	case model.QuestionText:
		return model.QuestionText, []string{}, issues
	}
	if len(options) > 0 {
		return model.QuestionSingle, options, append(issues, Issue{Field: "type", Reason: fmt.Sprintf("unknown tag %q, using single", tag)})
	}
	return model.QuestionText, []string{}, append(issues, Issue{Field: "type", Reason: fmt.Sprintf("unknown tag %q, using text", tag)})
}

func decodeEvidence(update map[string]any, issues []Issue) (model.EvidenceUpdate, []Issue) {
	var ev model.EvidenceUpdate
	ev.ScoresDelta, issues = decodeNumbers("scores_delta", update["scores_delta"], issues)

	if raw, ok := update["col_scores_delta"].(map[string]any); ok {
		ev.DimensionDeltas = make(map[string]map[string]float64, len(raw))
		for _, dim := range sortedKeys(raw) {
			var nums map[string]float64
			nums, issues = decodeNumbers("col_scores_delta."+dim, raw[dim], issues)
			if len(nums) > 0 {
				ev.DimensionDeltas[dim] = nums
			}
		}
	} else if update["col_scores_delta"] != nil {
		issues = append(issues, Issue{Field: "col_scores_delta", Reason: "not an object"})
	}

	if raw, ok := update["positions_guess"].(map[string]any); ok {
		ev.PositionGuess = make(map[string]string, len(raw))
		for _, slot := range sortedKeys(raw) {
			switch label := raw[slot].(type) {
			case nil:
			case string:
				if label = strings.TrimSpace(label); label != "" {
					ev.PositionGuess[slot] = label
				}
			default:
				issues = append(issues, Issue{Field: "positions_guess." + slot, Reason: "not text"})
			}
		}
	} else if update["positions_guess"] != nil {
		issues = append(issues, Issue{Field: "positions_guess", Reason: "not an object"})
	}

	ev.Confidence, issues = decodeNumbers("confidence", update["confidence"], issues)

	if note, ok := update["notes_for_master"].(string); ok {
		ev.Note = strings.TrimSpace(note)
	}
	return ev, issues
}

// decodeNumbers keeps the numeric entries of an object. Null entries are
// treated as absent.
func decodeNumbers(field string, v any, issues []Issue) (map[string]float64, []Issue) {
	if v == nil {
		return nil, issues
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, append(issues, Issue{Field: field, Reason: "not an object"})
	}
	out := make(map[string]float64, len(raw))
	for _, key := range sortedKeys(raw) {
		if raw[key] == nil {
			continue
		}
		f, err := toNumber(raw[key])
		if err != nil {
			issues = append(issues, Issue{Field: field + "." + key, Reason: err.Error()})
			continue
		}
		out[key] = f
	}
	return out, issues
}

func toNumber(v any) (float64, error) {
	var f float64
	var err error
	switch x := v.(type) {
	case bool:
		return 0, errors.New("boolean is not a number")
	case map[string]any, []any:
		return 0, errors.New("not a number")
	case string:
		f, err = cast.ToFloat64E(strings.TrimSpace(x))
	case json.Number:
		f, err = x.Float64()
	default:
		f, err = cast.ToFloat64E(x)
	}
	if err != nil {
		return 0, errors.New("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return f, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
