package matching

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// scoreItem is one usable entry of a scoring response.
type scoreItem struct {
	Score          float64
	MatchingSkills []string
	MissingSkills  []string
	Reasoning      string
}

// firstJSONArray decodes the first well-formed array of objects found in raw.
func firstJSONArray(raw string) ([]map[string]any, bool) {
	for start := strings.IndexByte(raw, '['); start != -1; {
		var items []map[string]any
		if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&items); err == nil {
			return items, true
		}
		next := strings.IndexByte(raw[start+1:], '[')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// parseScores maps the response entries onto the batch positions. Entries are
// matched by profile_id, entries without a known id take the position they
// appear at. The returned map holds only usable entries; a non-nil error means
// the response was unusable in part or in whole.
func parseScores(raw string, batch []Candidate) (map[int]scoreItem, error) {
	items, ok := firstJSONArray(raw)
	if !ok {
		return map[int]scoreItem{}, fmt.Errorf("%w: no JSON array in response", ErrScoringParse)
	}

	position := make(map[string]int, len(batch))
	for n, c := range batch {
		position[c.Profile.ID.String()] = n
	}

	type unidentified struct {
		at   int
		item scoreItem
	}
	out := make(map[int]scoreItem, len(batch))
	var rest []unidentified
	for n, item := range items {
		parsed, ok := toScoreItem(item)
		if !ok {
			continue
		}
		pos, known := position[coerceString(item["profile_id"])]
		if !known {
			rest = append(rest, unidentified{at: n, item: parsed})
			continue
		}
		if _, taken := out[pos]; !taken {
			out[pos] = parsed
		}
	}
	for _, u := range rest {
		if _, taken := out[u.at]; !taken && u.at < len(batch) {
			out[u.at] = u.item
		}
	}

	if len(out) < len(batch) {
		return out, fmt.Errorf("%w: %d of %d candidates usable", ErrScoringParse, len(out), len(batch))
	}
	return out, nil
}

func toScoreItem(item map[string]any) (scoreItem, bool) {
	score := coerceFloat(item["score"])
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return scoreItem{}, false
	}
	return scoreItem{
		Score:          clampScore(score),
		MatchingSkills: coerceStringList(item["matching_skills"]),
		MissingSkills:  coerceStringList(item["missing_skills"]),
		Reasoning:      coerceString(item["reasoning"]),
	}, true
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStringList(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(val, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
