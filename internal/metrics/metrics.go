package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CheckinsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memberportal", Name: "checkins_recorded_total", Help: "Attendance rows appended to the ledger",
	})
	ReconcileFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memberportal", Name: "reconcile_failures_total", Help: "Aggregate counter increments that failed after a successful append",
	})
	CodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memberportal", Name: "verification_codes_issued_total", Help: "Verification codes generated and stored",
	})
	CodeVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memberportal", Name: "verification_attempts_total", Help: "Verification attempts by outcome",
	}, []string{"result"})
	LedgerLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "memberportal", Name: "ledger_append_seconds", Help: "Ledger append latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(CheckinsRecorded, ReconcileFailures, CodesIssued, CodeVerifications, LedgerLatency)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveLedgerAppend(d time.Duration) { LedgerLatency.Observe(d.Seconds()) }
