package trust

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
)

func field(name string, conf float64, tier constants.Tier, status constants.ValidationStatus) fields.Field {
	return fields.Field{Name: name, Kind: fields.KindText, Confidence: conf, Tier: tier, Status: status}
}

func mustAggregator(t *testing.T, cfg Config) *Aggregator {
	t.Helper()
	a, err := NewAggregator(cfg)
	require.NoError(t, err)
	return a
}

func TestAggregate_Trusted(t *testing.T) {
	a := mustAggregator(t, Config{})
	fs := []fields.Field{
		field("invoice_number", 1, constants.TierHigh, constants.StatusValid),
		field("final_amount", 1, constants.TierHigh, constants.StatusValid),
	}
	r := a.Aggregate(fs, CrossCheck{Total: 1115, Items: []float64{500, 615}})

	require.NotNil(t, r.CrossValidation)
	assert.Equal(t, 1.0, *r.CrossValidation)
	assert.Equal(t, 1.0, r.Overall)
	assert.True(t, r.Trusted)
	assert.Empty(t, r.Invalid)
}

func TestAggregate_TierWeighting(t *testing.T) {
	a := mustAggregator(t, Config{})
	r := a.Aggregate([]fields.Field{
		field("a", 1, constants.TierHigh, constants.StatusValid),
		field("b", 1, constants.TierMedium, constants.StatusValid),
		field("c", 0.5, constants.TierLow, constants.StatusInvalid),
	}, CrossCheck{})

	assert.Equal(t, 1.0, r.PerField["a"])
	assert.InDelta(t, 0.7, r.PerField["b"], 1e-12)
	assert.InDelta(t, 0.15, r.PerField["c"], 1e-12)
	assert.InDelta(t, (1+0.7+0.15)/3, r.Overall, 1e-12)
	assert.Nil(t, r.CrossValidation)
	assert.Equal(t, []string{"c"}, r.Invalid)
	assert.False(t, r.Trusted)
}

func TestAggregate_CrossValidationOmittedWhenTotalZero(t *testing.T) {
	a := mustAggregator(t, Config{})
	fs := []fields.Field{
		field("a", 0.8, constants.TierHigh, constants.StatusValid),
		field("b", 0.6, constants.TierHigh, constants.StatusValid),
	}
	r := a.Aggregate(fs, CrossCheck{Total: 0, Items: []float64{10, 20}})
	assert.Nil(t, r.CrossValidation)
	assert.InDelta(t, 0.7, r.Overall, 1e-12)

	r = a.Aggregate(fs, CrossCheck{Total: 100})
	assert.Nil(t, r.CrossValidation)
	assert.InDelta(t, 0.7, r.Overall, 1e-12)
}

func TestCrossCheckScore(t *testing.T) {
	tests := []struct {
		name  string
		cross CrossCheck
		want  float64
		ok    bool
	}{
		{"exact", CrossCheck{Total: 100, Items: []float64{40, 60}}, 1, true},
		{"ten percent off", CrossCheck{Total: 100, Items: []float64{90}}, 0.9, true},
		{"way off clips to zero", CrossCheck{Total: 100, Items: []float64{500}}, 0, true},
		{"negative total uses magnitude", CrossCheck{Total: -100, Items: []float64{-90}}, 0.9, true},
		{"zero total", CrossCheck{Total: 0, Items: []float64{1}}, 0, false},
		{"no items", CrossCheck{Total: 10}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.cross.Score()
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAggregate_LowCrossBlocksTrust(t *testing.T) {
	a := mustAggregator(t, Config{})
	fs := []fields.Field{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		fs = append(fs, field(n, 1, constants.TierHigh, constants.StatusValid))
	}
	r := a.Aggregate(fs, CrossCheck{Total: 100, Items: []float64{75}})
	require.NotNil(t, r.CrossValidation)
	assert.InDelta(t, 0.75, *r.CrossValidation, 1e-12)
	assert.Greater(t, r.Overall, 0.9)
	assert.False(t, r.Trusted)
}

func TestAggregate_UnknownDoesNotBlockTrust(t *testing.T) {
	a := mustAggregator(t, Config{TierWeights: map[constants.Tier]float64{
		constants.TierHigh: 1, constants.TierMedium: 1, constants.TierLow: 1,
	}})
	r := a.Aggregate([]fields.Field{
		field("a", 1, constants.TierHigh, constants.StatusValid),
		field("email", 1, constants.TierLow, constants.StatusUnknown),
	}, CrossCheck{})
	assert.True(t, r.Trusted)
}

func TestAggregate_Monotonic(t *testing.T) {
	a := mustAggregator(t, Config{FieldWeights: map[string]float64{"a": 2, "b": 0.5}})
	base := []fields.Field{
		field("a", 0.4, constants.TierHigh, constants.StatusValid),
		field("b", 0.6, constants.TierMedium, constants.StatusValid),
		field("c", 0.2, constants.TierLow, constants.StatusValid),
	}
	cross := CrossCheck{Total: 100, Items: []float64{95}}
	prev := a.Aggregate(base, cross).Overall

	for i := range base {
		for _, c := range []float64{0.5, 0.7, 0.9, 1} {
			fs := append([]fields.Field(nil), base...)
			if c < fs[i].Confidence {
				continue
			}
			fs[i].Confidence = c
			assert.GreaterOrEqual(t, a.Aggregate(fs, cross).Overall, prev)
		}
	}
}

func TestAggregate_FieldWeights(t *testing.T) {
	a := mustAggregator(t, Config{FieldWeights: map[string]float64{"a": 3}})
	r := a.Aggregate([]fields.Field{
		field("a", 1, constants.TierHigh, constants.StatusValid),
		field("b", 0, constants.TierHigh, constants.StatusValid),
	}, CrossCheck{})
	assert.InDelta(t, 0.75, r.Overall, 1e-12)
}

func TestAggregate_Empty(t *testing.T) {
	a := mustAggregator(t, Config{})
	r := a.Aggregate(nil, CrossCheck{})
	assert.Equal(t, 0.0, r.Overall)
	assert.False(t, r.Trusted)
}

func TestNewAggregator_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"threshold above one", Config{TrustThreshold: 1.5}},
		{"tier out of range", Config{TierWeights: map[constants.Tier]float64{
			constants.TierHigh: 2, constants.TierMedium: 0.7, constants.TierLow: 0.3,
		}}},
		{"tier missing", Config{TierWeights: map[constants.Tier]float64{constants.TierHigh: 1}}},
		{"negative field weight", Config{FieldWeights: map[string]float64{"a": -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAggregator(tt.cfg)
			require.Error(t, err)
			assert.True(t, common.IsConfigError(err))
		})
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.ObserveStrategy("pdftotext", i%2 == 0)
		}(i)
	}
	wg.Wait()

	fs := []fields.Field{
		field("invoice_number", 1, constants.TierHigh, constants.StatusValid),
		field("gstin", 1, constants.TierLow, constants.StatusInvalid),
	}
	m.ObserveRecord(fs, Report{Trusted: true})
	m.ObserveRecord(fs, Report{})
	m.ObserveFailure()

	s := m.Snapshot()
	assert.Equal(t, Counter{Success: 25, Total: 50}, s.Strategies["pdftotext"])
	assert.Equal(t, 0.5, s.Strategies["pdftotext"].Rate())
	assert.Equal(t, Counter{Success: 2, Total: 2}, s.Fields["invoice_number"])
	assert.Equal(t, Counter{Success: 0, Total: 2}, s.Fields["gstin"])
	assert.Equal(t, 3, s.Documents)
	assert.Equal(t, 2, s.Extracted)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Trusted)
	assert.Equal(t, []string{"gstin", "invoice_number"}, s.FieldNames())

	m.ObserveFailure()
	assert.Equal(t, 3, s.Documents, "snapshot is a copy")
	assert.Equal(t, 0.0, Counter{}.Rate())
}
