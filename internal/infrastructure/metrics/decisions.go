package metrics

// DecisionRecorder forwards decision outcomes to the collector and,
// when configured, the Prometheus exporter.
type DecisionRecorder struct {
	collector *Collector
	exporter  *PrometheusExporter
}

// NewDecisionRecorder creates a recorder; exporter may be nil
func NewDecisionRecorder(collector *Collector, exporter *PrometheusExporter) *DecisionRecorder {
	return &DecisionRecorder{collector: collector, exporter: exporter}
}

// RecordDecision records one resolved check
func (r *DecisionRecorder) RecordDecision(capability string, allowed bool) {
	r.collector.RecordDecision(capability, allowed)
	if r.exporter != nil {
		r.exporter.RecordDecision(capability, allowed)
	}
}
