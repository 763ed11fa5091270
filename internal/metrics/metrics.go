// Package metrics exposes prometheus collectors for sessions and HTTP traffic.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mind-engage/ieltsprep/internal/session"
)

type Metrics struct {
	Registry *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsActive   prometheus.Gauge
	sessionsFinished *prometheus.CounterVec
	bandScore        *prometheus.HistogramVec
	scoreReports     *prometheus.CounterVec
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ielts_sessions_started_total",
			Help: "Exam sessions started.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ielts_sessions_active",
			Help: "Exam sessions currently running.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ielts_sessions_finished_total",
			Help: "Exam sessions finished, by reason.",
		}, []string{"reason"}),
		bandScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ielts_band_score",
			Help:    "Band scores of graded sessions.",
			Buckets: prometheus.LinearBuckets(0.5, 0.5, 18),
		}, []string{"test_type"}),
		scoreReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ielts_score_reports_total",
			Help: "Score save attempts, by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsStarted,
		m.sessionsActive,
		m.sessionsFinished,
		m.bandScore,
		m.scoreReports,
		m.requests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Middleware records request count and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) SessionStarted(context.Context, session.Info) {
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionGraded(_ context.Context, g session.Graded) {
	m.sessionsActive.Dec()
	m.sessionsFinished.WithLabelValues(string(g.Reason)).Inc()
	m.bandScore.WithLabelValues(string(g.TestType)).Observe(g.Outcome.Band)
}

func (m *Metrics) SessionClosed(context.Context, session.Info) {
	m.sessionsActive.Dec()
	m.sessionsFinished.WithLabelValues(string(session.ReasonClosed)).Inc()
}

// ScoreReported implements report.OutcomeObserver.
func (m *Metrics) ScoreReported(outcome string) {
	m.scoreReports.WithLabelValues(outcome).Inc()
}
