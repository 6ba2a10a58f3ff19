// Package trust folds validated fields into a per-document TrustReport and keeps lifetime metrics.
package trust

import (
	"fmt"
	"math"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
)

const (
	DefaultTrustThreshold = 0.9
	DefaultCrossThreshold = 0.8
)

// DefaultTierWeights maps confidence tiers to the weight applied to extraction confidence.
var DefaultTierWeights = map[constants.Tier]float64{
	constants.TierHigh:   1.0,
	constants.TierMedium: 0.7,
	constants.TierLow:    0.3,
}

// Config is the aggregation policy. Zero thresholds and a nil tier map take the defaults.
type Config struct {
	TierWeights    map[constants.Tier]float64
	FieldWeights   map[string]float64 // nil -> unweighted mean
	CrossWeight    float64            // weight of the cross-validation term when FieldWeights is set; 0 -> 1
	TrustThreshold float64
	CrossThreshold float64
}

// CrossCheck carries the declared total and the line-item amounts it should equal.
type CrossCheck struct {
	Total float64
	Items []float64
}

// Score returns 1 - |total - sum|/|total| clipped to [0,1]; ok is false when it cannot be computed.
func (c CrossCheck) Score() (float64, bool) {
	if c.Total == 0 || len(c.Items) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range c.Items {
		sum += v
	}
	s := 1 - math.Abs(c.Total-sum)/math.Abs(c.Total)
	if math.IsNaN(s) {
		return 0, false
	}
	return clip(s), true
}

// Report is the TrustReport of one document.
type Report struct {
	PerField        map[string]float64 `json:"per_field_confidence"`
	CrossValidation *float64           `json:"cross_validation_score,omitempty"`
	Overall         float64            `json:"overall_trust_score"`
	Trusted         bool               `json:"is_trusted"`
	Invalid         []string           `json:"invalid_fields,omitempty"`
}

// Aggregator is stateless; Metrics are kept separately.
type Aggregator struct {
	cfg Config
}

func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.TierWeights == nil {
		cfg.TierWeights = DefaultTierWeights
	}
	if cfg.TrustThreshold == 0 {
		cfg.TrustThreshold = DefaultTrustThreshold
	}
	if cfg.CrossThreshold == 0 {
		cfg.CrossThreshold = DefaultCrossThreshold
	}
	if cfg.CrossWeight == 0 {
		cfg.CrossWeight = 1
	}

	v := common.NewValidator().
		Field("trust_threshold", cfg.TrustThreshold, common.UnitInterval).
		Field("cross_threshold", cfg.CrossThreshold, common.UnitInterval)
	for _, tier := range []constants.Tier{constants.TierHigh, constants.TierMedium, constants.TierLow} {
		w, ok := cfg.TierWeights[tier]
		if !ok {
			v.Field("tiers."+string(tier), nil, common.Fail("weight missing"))
			continue
		}
		v.Field("tiers."+string(tier), w, common.UnitInterval)
	}
	for name, w := range cfg.FieldWeights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			v.Field("field_weights."+name, w, common.Fail("must be a finite non-negative number"))
		}
	}
	if cfg.CrossWeight < 0 {
		v.Field("cross_weight", cfg.CrossWeight, common.Fail("must not be negative"))
	}
	if err := v.Error(); err != nil {
		return nil, common.NewConfigError("trust configuration", err)
	}
	return &Aggregator{cfg: cfg}, nil
}

// Weight returns the numeric weight of a tier; unknown tiers weigh as Low.
func (a *Aggregator) Weight(t constants.Tier) float64 {
	if w, ok := a.cfg.TierWeights[t]; ok {
		return w
	}
	return a.cfg.TierWeights[constants.TierLow]
}

// Aggregate computes the report for one document's validated fields.
func (a *Aggregator) Aggregate(fs []fields.Field, cross CrossCheck) Report {
	r := Report{PerField: make(map[string]float64, len(fs))}

	var sum, weights float64
	for _, f := range fs {
		c := clip(f.Confidence * a.Weight(f.Tier))
		r.PerField[f.Name] = c
		w := a.fieldWeight(f.Name)
		sum += c * w
		weights += w
		if f.Status == constants.StatusInvalid {
			r.Invalid = append(r.Invalid, f.Name)
		}
	}

	if s, ok := cross.Score(); ok {
		r.CrossValidation = &s
		w := 1.0
		if a.cfg.FieldWeights != nil {
			w = a.cfg.CrossWeight
		}
		sum += s * w
		weights += w
	}

	if weights > 0 {
		r.Overall = clip(sum / weights)
	}

	r.Trusted = r.Overall > a.cfg.TrustThreshold &&
		(r.CrossValidation == nil || *r.CrossValidation > a.cfg.CrossThreshold) &&
		len(r.Invalid) == 0
	return r
}

func (a *Aggregator) fieldWeight(name string) float64 {
	if a.cfg.FieldWeights == nil {
		return 1
	}
	if w, ok := a.cfg.FieldWeights[name]; ok {
		return w
	}
	return 1
}

func (r Report) String() string {
	cross := "n/a"
	if r.CrossValidation != nil {
		cross = fmt.Sprintf("%.3f", *r.CrossValidation)
	}
	return fmt.Sprintf("overall=%.3f cross=%s trusted=%t", r.Overall, cross, r.Trusted)
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
