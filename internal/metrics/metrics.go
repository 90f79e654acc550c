package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// StoreOpsTotal counts collection reads and writes by operation and result.
	StoreOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "store",
		Name:      "ops_total",
		Help:      "Total number of feedback/user collection operations, labeled by op and result.",
	}, []string{"op", "result"})

	// AnalysesTotal counts classifier calls by origin and result.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "classifier",
		Name:      "analyses_total",
		Help:      "Total number of feedback analyses, labeled by origin and result.",
	}, []string{"origin", "result"})

	// AnalysisDurationSeconds is the time spent waiting on the model per call.
	AnalysisDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "apex",
		Subsystem: "classifier",
		Name:      "duration_seconds",
		Help:      "Time spent in a single classifier model call.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
	}, []string{"kind"})

	// FeedbackRecords is the size of the whole feedback collection at the last
	// store read or write, independent of any caller's scope.
	FeedbackRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "apex",
		Subsystem: "store",
		Name:      "feedback_records",
		Help:      "Number of records in the feedback collection at the last store access.",
	})

	// SessionsTotal counts sign-in outcomes by mode.
	SessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "auth",
		Name:      "sessions_total",
		Help:      "Total number of sessions issued, labeled by mode (authenticated or demo).",
	}, []string{"mode"})
)

// Register registers apex metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			StoreOpsTotal,
			AnalysesTotal,
			AnalysisDurationSeconds,
			FeedbackRecords,
			SessionsTotal,
		)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStoreOp records one store operation.
func ObserveStoreOp(op string, err error) {
	StoreOpsTotal.WithLabelValues(op, result(err)).Inc()
}

// ObserveAnalysis records one classifier call that started at start.
func ObserveAnalysis(kind, origin string, start time.Time, err error) {
	AnalysesTotal.WithLabelValues(origin, result(err)).Inc()
	AnalysisDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
