// Package scoring turns strategy output into confidence scores and picks the winning strategy.
package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

// DefaultKeywords are the invoice markers checked by the keyword-coverage factor.
var DefaultKeywords = []string{"invoice", "total", "amount", "date", "customer"}

// DefaultLengthThreshold is the character count at which the length factor saturates.
const DefaultLengthThreshold = 1000

// Config drives the three confidence factors.
type Config struct {
	LengthThreshold int      // characters; <= 0 -> DefaultLengthThreshold
	Keywords        []string // case-insensitive; nil -> DefaultKeywords
}

// Scorer computes a confidence in [0,1] from a single strategy result.
type Scorer struct {
	lengthThreshold float64
	keywords        []string
}

func NewScorer(cfg Config) *Scorer {
	if cfg.LengthThreshold <= 0 {
		cfg.LengthThreshold = DefaultLengthThreshold
	}
	if cfg.Keywords == nil {
		cfg.Keywords = DefaultKeywords
	}
	kw := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return &Scorer{lengthThreshold: float64(cfg.LengthThreshold), keywords: kw}
}

// Factors is the breakdown behind a score.
type Factors struct {
	Length   float64 `json:"length"`
	Speed    float64 `json:"speed"`
	Keywords float64 `json:"keywords"`
}

// Mean is the unweighted mean of the factors.
func (f Factors) Mean() float64 {
	return clip((f.Length + f.Speed + f.Keywords) / 3)
}

// Factors computes each factor; a failed result has all factors at 0.
func (s *Scorer) Factors(r strategy.Result) Factors {
	if !r.Succeeded {
		return Factors{}
	}
	length := clip(float64(utf8.RuneCountInString(r.Text)) / s.lengthThreshold)
	speed := clip(1 / (1 + r.Duration.Seconds()))

	var coverage float64
	if len(s.keywords) > 0 {
		lower := strings.ToLower(r.Text)
		found := 0
		for _, k := range s.keywords {
			if strings.Contains(lower, k) {
				found++
			}
		}
		coverage = clip(float64(found) / float64(len(s.keywords)))
	}
	return Factors{Length: length, Speed: speed, Keywords: coverage}
}

// Score is a pure function of r.Text, r.Duration and r.Succeeded.
func (s *Scorer) Score(r strategy.Result) float64 {
	if !r.Succeeded {
		return 0
	}
	return s.Factors(r).Mean()
}

// Scored pairs a strategy name with its score.
type Scored struct {
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
	Factors  Factors `json:"factors"`
}

// ScoreAll scores every result, preserving registration order.
func (s *Scorer) ScoreAll(rs strategy.Results) []Scored {
	out := make([]Scored, len(rs))
	for i, r := range rs {
		f := s.Factors(r)
		out[i] = Scored{Strategy: r.Strategy, Score: s.Score(r), Factors: f}
	}
	return out
}

func clip(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
