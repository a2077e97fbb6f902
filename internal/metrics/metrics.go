package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var summaryObjectives = map[float64]float64{
	0.5:  0.05,
	0.90: 0.01,
	0.99: 0.001,
}

var messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_messages_sent_total",
	Help: "Messages accepted by the provider, by origin (dispatch or processor)",
}, []string{"origin"})

var messagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_messages_failed_total",
	Help: "Messages the provider rejected or that could not be delivered to it, by origin",
}, []string{"origin"})

var messagesScheduled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tm_messages_scheduled_total",
	Help: "Messages persisted for later delivery",
})

var sendDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "tm_send_duration_ms",
	Help:       "Duration (milliseconds) of provider send calls by outcome",
	Objectives: summaryObjectives,
}, []string{"outcome"})

var processorClaimed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tm_processor_claimed_total",
	Help: "Scheduled messages claimed by the due-message processor",
})

var processorSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tm_processor_lock_skipped_total",
	Help: "Processor runs skipped because another run holds the lock",
})

var automationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_automation_runs_total",
	Help: "Automation executions by action type and outcome",
}, []string{"action", "outcome"})

var automationSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_automation_skipped_total",
	Help: "Automations not executed because of the causation guard, by reason",
}, []string{"reason"})

var statusUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_status_updates_total",
	Help: "Provider status callbacks by status and whether they were applied",
}, []string{"status", "applied"})

var nonFatalDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tm_nonfatal_dropped_total",
	Help: "Best-effort side effects that failed and were dropped, by operation",
}, []string{"op"})

var providerRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tm_provider_retries_total",
	Help: "Provider requests retried after a transient failure",
})

func MessageSent(origin string, durationMs float64) {
	messagesSent.WithLabelValues(origin).Inc()
	sendDuration.WithLabelValues("sent").Observe(durationMs)
}

func MessageFailed(origin string, durationMs float64) {
	messagesFailed.WithLabelValues(origin).Inc()
	sendDuration.WithLabelValues("failed").Observe(durationMs)
}

func MessageScheduled() {
	messagesScheduled.Inc()
}

func ProcessorClaimed(n int) {
	processorClaimed.Add(float64(n))
}

func ProcessorLockSkipped() {
	processorSkipped.Inc()
}

func AutomationRun(action, outcome string) {
	automationRuns.WithLabelValues(action, outcome).Inc()
}

func AutomationSkipped(reason string) {
	automationSkipped.WithLabelValues(reason).Inc()
}

func StatusUpdate(status string, applied bool) {
	a := "false"
	if applied {
		a = "true"
	}
	statusUpdates.WithLabelValues(status, a).Inc()
}

func NonFatalDropped(op string) {
	nonFatalDropped.WithLabelValues(op).Inc()
}

// NonFatalDroppedCount is used by tests.
func NonFatalDroppedCount(op string) prometheus.Counter {
	return nonFatalDropped.WithLabelValues(op)
}

func ProviderRetry() {
	providerRetries.Inc()
}
