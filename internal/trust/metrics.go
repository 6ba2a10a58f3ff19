package trust

import (
	"sort"
	"sync"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
)

// Counter is a success/total pair.
type Counter struct {
	Success int `json:"success"`
	Total   int `json:"total"`
}

// Rate is Success/Total, 0 when nothing was counted.
func (c Counter) Rate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Success) / float64(c.Total)
}

// Snapshot is a point-in-time copy of the lifetime counters.
type Snapshot struct {
	Documents  int                `json:"documents"`
	Extracted  int                `json:"extracted"`
	Failed     int                `json:"failed"`
	Trusted    int                `json:"trusted"`
	Strategies map[string]Counter `json:"strategies"`
	Fields     map[string]Counter `json:"fields"`
}

// FieldNames returns the counted fields in sorted order.
func (s Snapshot) FieldNames() []string {
	return sortedKeys(s.Fields)
}

// StrategyNames returns the counted strategies in sorted order.
func (s Snapshot) StrategyNames() []string {
	return sortedKeys(s.Strategies)
}

// Metrics are append-only process-lifetime counters. Safe for concurrent use.
// Nothing in scoring reads them.
type Metrics struct {
	mu         sync.Mutex
	documents  int
	extracted  int
	failed     int
	trusted    int
	strategies map[string]*Counter
	fields     map[string]*Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		strategies: make(map[string]*Counter),
		fields:     make(map[string]*Counter),
	}
}

// ObserveStrategy counts one strategy invocation.
func (m *Metrics) ObserveStrategy(name string, succeeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counter(m.strategies, name)
	c.Total++
	if succeeded {
		c.Success++
	}
}

// ObserveRecord counts a document that produced a record: VALID fields count as correct.
func (m *Metrics) ObserveRecord(fs []fields.Field, report Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents++
	m.extracted++
	if report.Trusted {
		m.trusted++
	}
	for _, f := range fs {
		c := m.counter(m.fields, f.Name)
		c.Total++
		if f.Status == constants.StatusValid {
			c.Success++
		}
	}
}

// ObserveFailure counts a document with no record.
func (m *Metrics) ObserveFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents++
	m.failed++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Documents:  m.documents,
		Extracted:  m.extracted,
		Failed:     m.failed,
		Trusted:    m.trusted,
		Strategies: make(map[string]Counter, len(m.strategies)),
		Fields:     make(map[string]Counter, len(m.fields)),
	}
	for k, c := range m.strategies {
		s.Strategies[k] = *c
	}
	for k, c := range m.fields {
		s.Fields[k] = *c
	}
	return s
}

func (m *Metrics) counter(set map[string]*Counter, name string) *Counter {
	c, ok := set[name]
	if !ok {
		c = &Counter{}
		set[name] = c
	}
	return c
}

func sortedKeys(m map[string]Counter) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
