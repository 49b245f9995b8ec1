package matching

import (
	"sort"

	"alfredoptarigan/consultant-matcher/internal/models"
)

const DefaultTopN = 3

// Rank orders scored candidates by score, then similarity, then profile ID,
// and returns at most n of them.
func Rank(scored []models.ScoredCandidate, n int) []models.ScoredCandidate {
	if n <= 0 {
		n = DefaultTopN
	}

	ranked := append([]models.ScoredCandidate(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.ProfileID.String() < b.ProfileID.String()
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// OverallScore is the mean score of the ranked candidates, 0 when there are none.
func OverallScore(top []models.ScoredCandidate) float64 {
	if len(top) == 0 {
		return 0
	}
	var sum float64
	for _, c := range top {
		sum += c.Score
	}
	return sum / float64(len(top))
}
