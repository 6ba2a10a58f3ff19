package scoring

import (
	"errors"
	"sort"
)

var ErrNoCandidates = errors.New("no strategies to select from")

// Select returns the strategy with the strictly highest score.
// Ties, including the all-zero case, go to the earliest entry (registration order).
func Select(scores []Scored) (string, error) {
	if len(scores) == 0 {
		return "", ErrNoCandidates
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Score > scores[best].Score {
			best = i
		}
	}
	return scores[best].Strategy, nil
}

// Rank orders strategies by score descending, priority ascending. The input is not modified.
func Rank(scores []Scored) []Scored {
	out := append([]Scored(nil), scores...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
