package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the sync core.
type Metrics struct {
	SaveOutcomes   *prometheus.CounterVec
	SyncedRecords  *prometheus.CounterVec
	RemoteRequests *prometheus.HistogramVec
	gatherer       prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SaveOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsync_save_outcomes_total",
				Help: "Result saves by destination",
			},
			[]string{"source"},
		),
		SyncedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsync_sync_records_total",
				Help: "Queued records processed by sync passes",
			},
			[]string{"result"},
		),
		RemoteRequests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizsync_remote_request_duration_seconds",
				Help:    "Duration of remote blob store calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.SaveOutcomes, m.SyncedRecords, m.RemoteRequests)
	return m
}

// ObserveRemote records one remote call.
func (m *Metrics) ObserveRemote(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RemoteRequests.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Save(source string) {
	if m == nil {
		return
	}
	m.SaveOutcomes.WithLabelValues(source).Inc()
}

func (m *Metrics) Synced(ok bool) {
	if m == nil {
		return
	}
	result := "synced"
	if !ok {
		result = "failed"
	}
	m.SyncedRecords.WithLabelValues(result).Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
