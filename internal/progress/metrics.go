package progress

import "github.com/prometheus/client_golang/prometheus"

// metricsSet is the additive Prometheus instrumentation (SPEC_FULL §4.7):
// the JSON health file remains the spec-mandated source of truth; these
// gauges are an extra observability surface layered on top, grounded on the
// pack's aistore/gcsfuse-style client_golang usage.
type metricsSet struct {
	bytesComplete       prometheus.Gauge
	chunksTotal         prometheus.Gauge
	chunksComplete      prometheus.Gauge
	circuitBreakerTrip  prometheus.Gauge
	phase               prometheus.Gauge
}

func newMetricsSet() *metricsSet {
	m := &metricsSet{
		bytesComplete: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robocurse_bytes_complete",
			Help: "Total bytes copied so far for the current profile, including in-flight estimates.",
		}),
		chunksTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robocurse_chunks_total",
			Help: "Total chunks planned for the current profile.",
		}),
		chunksComplete: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robocurse_chunks_complete",
			Help: "Chunks completed (success or warning) for the current profile.",
		}),
		circuitBreakerTrip: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robocurse_circuit_breaker_tripped",
			Help: "1 if the circuit breaker has tripped, 0 otherwise.",
		}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robocurse_phase",
			Help: "Current orchestrator phase as an integer (see rcmodel.Phase).",
		}),
	}
	prometheus.MustRegister(m.bytesComplete, m.chunksTotal, m.chunksComplete, m.circuitBreakerTrip, m.phase)
	return m
}

func (m *metricsSet) update(st Status, bytesComplete int64, breakerTripped bool) {
	m.bytesComplete.Set(float64(bytesComplete))
	m.chunksTotal.Set(float64(st.ChunksTotal))
	m.chunksComplete.Set(float64(st.ChunksComplete))
	m.phase.Set(float64(st.Phase))
	if breakerTripped {
		m.circuitBreakerTrip.Set(1)
	} else {
		m.circuitBreakerTrip.Set(0)
	}
}
