package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes counters for the request-defense pipeline. Construct once in
// main; guards and workers accept a nil *Metrics and skip recording, so tests
// never touch the default prometheus registry.
type Metrics struct {
	GuardRejectionsTotal     *prometheus.CounterVec
	RateLimitDelaysTotal     prometheus.Counter
	BruteForceBlocksTotal    prometheus.Counter
	SuspiciousInputsTotal    *prometheus.CounterVec
	UploadRejectionsTotal    *prometheus.CounterVec
	SweepRunsTotal           *prometheus.CounterVec
	SweepEvictionsTotal      prometheus.Counter
	SweepDurationSeconds     prometheus.Histogram
	SocketAdmissionsRejected prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		GuardRejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_guard_rejections_total",
			Help: "Requests terminated by a defense guard, by guard and reason",
		}, []string{"guard", "reason"}),
		RateLimitDelaysTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskdesk_ratelimit_delays_total",
			Help: "Requests slowed down after exceeding the soft cap",
		}),
		BruteForceBlocksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskdesk_bruteforce_blocks_total",
			Help: "Requests blocked by the brute-force attempt tracker",
		}),
		SuspiciousInputsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_suspicious_inputs_total",
			Help: "Inputs matching an injection, XSS, or traversal signature",
		}, []string{"kind"}),
		UploadRejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_upload_rejections_total",
			Help: "Upload candidates rejected by the upload gate, by reason",
		}, []string{"reason"}),
		SweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_defense_sweep_runs_total",
			Help: "Total number of defense table sweep runs",
		}, []string{"status"}),
		SweepEvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskdesk_defense_sweep_evictions_total",
			Help: "Stale counter records evicted by the sweep worker",
		}),
		SweepDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "taskdesk_defense_sweep_duration_seconds",
			Help: "Duration of sweep runs in seconds",
		}),
		SocketAdmissionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taskdesk_socket_admissions_rejected_total",
			Help: "Real-time channel connections rejected at the handshake",
		}),
	}
}

func (m *Metrics) IncGuardRejection(guard, reason string) {
	if m == nil {
		return
	}
	m.GuardRejectionsTotal.WithLabelValues(guard, reason).Inc()
}

func (m *Metrics) IncRateLimitDelay() {
	if m == nil {
		return
	}
	m.RateLimitDelaysTotal.Inc()
}

func (m *Metrics) IncBruteForceBlock() {
	if m == nil {
		return
	}
	m.BruteForceBlocksTotal.Inc()
}

func (m *Metrics) IncSuspiciousInput(kind string) {
	if m == nil {
		return
	}
	m.SuspiciousInputsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncUploadRejection(reason string) {
	if m == nil {
		return
	}
	m.UploadRejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSweepRun(status string) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) AddSweepEvictions(n int) {
	if m == nil {
		return
	}
	m.SweepEvictionsTotal.Add(float64(n))
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDurationSeconds.Observe(seconds)
}

func (m *Metrics) IncSocketRejected() {
	if m == nil {
		return
	}
	m.SocketAdmissionsRejected.Inc()
}
