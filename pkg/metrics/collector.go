package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of onboarding state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	reminderTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_ticks_total",
			Help: "Reminder ticks labeled by outcome (sent, skipped, inactive, failed)",
		},
		[]string{"result"},
	)
	scheduledJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduled_jobs",
			Help: "Current number of live reminder jobs",
		},
	)
	persistenceSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_saves_total",
			Help: "Snapshot writes labeled by result",
		},
		[]string{"result"},
	)
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Inbound update rate limit checks by backend and result",
		},
		[]string{"backend", "result"},
	)
	rateLimitBackendErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_backend_errors_total",
			Help: "Redis failures that sent rate limit checks to the in-memory fallback",
		},
	)
	usersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "users_by_state",
			Help: "Number of users per onboarding state",
		},
		[]string{"state"},
	)
)

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition tracks FSM transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// RecordTick counts one reminder tick outcome.
func RecordTick(result string) {
	reminderTicksTotal.WithLabelValues(result).Inc()
}

// SetScheduledJobs updates the live job gauge.
func SetScheduledJobs(count int) {
	scheduledJobs.Set(float64(count))
}

// RecordSave counts one snapshot write.
func RecordSave(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	persistenceSavesTotal.WithLabelValues(result).Inc()
}

// RecordRateLimit counts one rate limit decision.
func RecordRateLimit(backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	rateLimitChecksTotal.WithLabelValues(backend, result).Inc()
}

// RecordRateLimitBackendError counts a failed Redis rate limit check.
func RecordRateLimitBackendError() {
	rateLimitBackendErrorsTotal.Inc()
}

// StateCounter reports how many users are in each onboarding state.
type StateCounter interface {
	CountByState() map[string]int
}

// StateCollector periodically gathers per-state user counts.
type StateCollector struct {
	source   StateCounter
	tracked  []string
	interval time.Duration
}

// NewStateCollector builds a collector that always reports the tracked states, zero included.
func NewStateCollector(source StateCounter, tracked []string) *StateCollector {
	return &StateCollector{source: source, tracked: tracked, interval: 10 * time.Second}
}

// Run polls the source every interval until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.source == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		c.Collect()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

// Collect refreshes the users_by_state gauge once.
func (c *StateCollector) Collect() {
	counts := c.source.CountByState()

	usersByState.Reset()

	for _, label := range c.tracked {
		usersByState.WithLabelValues(label).Set(float64(counts[label]))
		delete(counts, label)
	}

	for label, count := range counts {
		usersByState.WithLabelValues(label).Set(float64(count))
	}
}
