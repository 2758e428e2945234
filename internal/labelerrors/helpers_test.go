package labelerrors

import (
	"context"
	"sync"

	"labelaudit/internal/noise"
	"labelaudit/internal/records"
)

// MockDetector records the request and returns canned indices
type MockDetector struct {
	mu       sync.Mutex
	indices  []int
	err      error
	calls    int
	received noise.Request
}

func (m *MockDetector) FindNoiseIndices(ctx context.Context, req noise.Request) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.received = req
	if m.err != nil {
		return nil, m.err
	}
	return m.indices, nil
}

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	audits      int
	failures    int
	dropped     float64
	labelErrors []float64
	latencies   int
}

func (m *MockMetrics) AuditsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits++
}

func (m *MockMetrics) AuditFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) RecordsDroppedAdd(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += v
}

func (m *MockMetrics) LabelErrorsObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labelErrors = append(m.labelErrors, v)
}

func (m *MockMetrics) DetectorLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func pred(pairs ...any) []records.LabelProb {
	out := make([]records.LabelProb, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, records.LabelProb{Label: pairs[i].(string), Probability: pairs[i+1].(float64)})
	}
	return out
}

// sampleBatch is a batch of three records where the third lacks an
// annotation.
func sampleBatch() []records.ClassificationRecord {
	return []records.ClassificationRecord{
		{ID: "A", Text: "loved it", Prediction: pred("pos", 0.9, "neg", 0.1), Annotation: "neg"},
		{ID: "B", Text: "hated it", Prediction: pred("pos", 0.2, "neg", 0.8), Annotation: "pos"},
		{ID: "C", Text: "meh", Prediction: pred("pos", 0.5, "neg", 0.5)},
	}
}

func ids(recs []records.ClassificationRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
