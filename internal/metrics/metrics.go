// Package metrics exposes Prometheus counters for the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitetrack_http_requests_total",
		Help: "HTTP requests by method and status class.",
	}, []string{"method", "status"})

	ProjectsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitetrack_projects_created_total",
		Help: "Projects registered since process start.",
	})

	DispatchesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitetrack_dispatches_recorded_total",
		Help: "Material dispatch entries recorded since process start.",
	})

	ExpensesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitetrack_expenses_recorded_total",
		Help: "Expenses recorded since process start.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts every request by method and status class.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		RequestsTotal.WithLabelValues(req.Method, statusClass(rec.status)).Inc()
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
