package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the heart-rate monitor collectors. Methods on a nil
// *Metrics do nothing.
type Metrics struct {
	readings      *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	clients       prometheus.Gauge
	pruned        prometheus.Counter
	cacheRequests *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartify",
			Name:      "heart_rate_readings_total",
			Help:      "Heart-rate readings stored, by ingest source.",
		}, []string{"source"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartify",
			Name:      "heart_rate_readings_rejected_total",
			Help:      "Heart-rate readings rejected as invalid, by ingest source.",
		}, []string{"source"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heartify",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heartify",
			Name:      "heart_rate_readings_pruned_total",
			Help:      "Readings removed by the retention job.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartify",
			Name:      "latest_reading_cache_requests_total",
			Help:      "Latest-reading lookups by cache result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.readings, m.rejected, m.clients, m.pruned, m.cacheRequests)
	return m
}

func (m *Metrics) readingStored(source string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(source).Inc()
}

func (m *Metrics) readingRejected(source string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(source).Inc()
}

func (m *Metrics) setClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *Metrics) readingsPruned(n int64) {
	if m == nil {
		return
	}
	m.pruned.Add(float64(n))
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}
