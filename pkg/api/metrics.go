package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	flotmetrics "github.com/flotilla-deploy/flotilla/pkg/metrics"
)

var requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "flotilla",
	Subsystem: "api",
	Name:      "request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{flotmetrics.LabelMethod, flotmetrics.LabelRoute, flotmetrics.LabelStatusCode})

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		requestDuration.With(
			flotmetrics.LabelMethod, r.Method,
			flotmetrics.LabelRoute, route,
			flotmetrics.LabelStatusCode, strconv.Itoa(rec.status),
		).Observe(time.Since(begin).Seconds())
	})
}
