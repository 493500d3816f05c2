package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HaoJinjin/open-soda/internal/jobs"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opensoda_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opensoda_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "route"})
	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opensoda_predictions_total",
		Help: "Prediction pipeline runs by outcome (ok, failed, cached).",
	}, []string{"outcome"})
	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opensoda_jobs_finished_total",
		Help: "Background jobs that reached a terminal state.",
	}, []string{"kind", "status"})
)

// observeJob is the registry observer. It only counts terminal states.
func observeJob(job jobs.Job) {
	if job.Status.Terminal() {
		jobsFinished.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	}
}
