package predictor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts predictions and artifact loads. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	predictions  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	artifactLoad *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartify",
			Name:      "predictions_total",
			Help:      "Completed risk predictions by predicted label.",
		}, []string{"label"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartify",
			Name:      "prediction_failures_total",
			Help:      "Failed risk predictions by failure kind.",
		}, []string{"kind"}),
		artifactLoad: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "heartify",
			Name:      "artifact_load_seconds",
			Help:      "Time spent deserializing the classifier and encoder.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"result"}),
	}
	reg.MustRegister(m.predictions, m.failures, m.artifactLoad)
	return m
}

func (m *Metrics) observePrediction(label int) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(strconv.Itoa(label)).Inc()
}

func (m *Metrics) observeFailure(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(Kind(err)).Inc()
}

func (m *Metrics) observeLoad(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.artifactLoad.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
