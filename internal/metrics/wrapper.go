package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Wrapper adapts Metrics to the narrow interfaces of the label error
// adapter and the noise detection server, avoiding circular imports.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) AuditsInc() {
	w.m.AuditsTotal.Inc()
}

func (w *Wrapper) AuditFailuresInc() {
	w.m.AuditFailures.Inc()
}

func (w *Wrapper) RecordsDroppedAdd(v float64) {
	w.m.RecordsDropped.Add(v)
}

func (w *Wrapper) LabelErrorsObserve(v float64) {
	w.m.LabelErrors.Observe(v)
}

func (w *Wrapper) DetectorLatencyObserve(v float64) {
	w.m.DetectorLatency.Observe(v)
}

func (w *Wrapper) ServerRequestsInc() {
	w.m.ServerRequests.Inc()
}

func (w *Wrapper) ServerErrorsInc() {
	w.m.ServerErrors.Inc()
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return out.GetCounter().GetValue()
}
