package calcfield

import (
	"sync"
	"time"
)

// CalculationMetrics tracks statistics about calculation calls.
type CalculationMetrics struct {
	Calculations     int
	HardFailures     int
	FieldsRequested  int
	FieldsEvaluated  int
	FieldsBlanked    int
	BlanksByKind     map[ErrorKind]int
	CacheHits        int
	CacheMisses      int
	TotalDuration    time.Duration
	LongestDuration  time.Duration
	ShortestDuration time.Duration

	mu sync.Mutex // Protects metrics updates
}

// Copy returns a snapshot without the mutex.
func (m *CalculationMetrics) Copy() CalculationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	blanks := make(map[ErrorKind]int, len(m.BlanksByKind))
	for k, v := range m.BlanksByKind {
		blanks[k] = v
	}
	return CalculationMetrics{
		Calculations:     m.Calculations,
		HardFailures:     m.HardFailures,
		FieldsRequested:  m.FieldsRequested,
		FieldsEvaluated:  m.FieldsEvaluated,
		FieldsBlanked:    m.FieldsBlanked,
		BlanksByKind:     blanks,
		CacheHits:        m.CacheHits,
		CacheMisses:      m.CacheMisses,
		TotalDuration:    m.TotalDuration,
		LongestDuration:  m.LongestDuration,
		ShortestDuration: m.ShortestDuration,
	}
}

func (m *CalculationMetrics) recordCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.CacheHits++
	} else {
		m.CacheMisses++
	}
}

func (m *CalculationMetrics) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calculations++
	m.HardFailures++
}

// recordOutcome folds one successful calculation into the counters.
func (m *CalculationMetrics) recordOutcome(requested, evaluated int, outcome Outcome, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calculations++
	m.FieldsRequested += requested
	m.FieldsEvaluated += evaluated
	if m.BlanksByKind == nil {
		m.BlanksByKind = make(map[ErrorKind]int)
	}
	for _, r := range outcome {
		if r.Error != nil {
			m.FieldsBlanked++
			m.BlanksByKind[r.Error.Kind]++
		}
	}

	m.TotalDuration += duration
	if duration > m.LongestDuration {
		m.LongestDuration = duration
	}
	if m.ShortestDuration == 0 || (duration < m.ShortestDuration && duration > 0) {
		m.ShortestDuration = duration
	}
}
