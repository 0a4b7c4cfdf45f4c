// Package metrics provides Prometheus metrics for the supervision loop.
//
// Metrics are registered with promauto on the default registry and are fed
// from the event bus by Subscribe.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/plexwatch/internal/events"
)

var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plexwatch",
		Subsystem: "probe",
		Name:      "total",
		Help:      "Health probes by outcome",
	}, []string{"outcome", "healthy"})

	probeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "plexwatch",
		Subsystem: "probe",
		Name:      "duration_seconds",
		Help:      "Health probe round trip time",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	})

	probeStatusCode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "plexwatch",
		Subsystem: "probe",
		Name:      "last_status_code",
		Help:      "HTTP status code of the last probe, 0 when no response",
	})

	serverUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "plexwatch",
		Name:      "up",
		Help:      "1 when the last probe returned HTTP 200",
	})

	remediationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plexwatch",
		Subsystem: "remediation",
		Name:      "total",
		Help:      "Kill-and-restart cycles started",
	})

	processesKilled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plexwatch",
		Subsystem: "process",
		Name:      "killed_total",
		Help:      "Processes matched for force kill",
	})

	killFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plexwatch",
		Subsystem: "process",
		Name:      "kill_failures_total",
		Help:      "Force kill requests rejected by the OS",
	})

	processStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plexwatch",
		Subsystem: "process",
		Name:      "starts_total",
		Help:      "Launches of the supervised executable",
	}, []string{"discovered"})

	loopState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "plexwatch",
		Name:      "state",
		Help:      "1 for the current supervision loop state",
	}, []string{"state"})
)

var knownStates = []string{"initializing", "polling", "remediating"}

// RecordProbe records one probe result.
func RecordProbe(e events.ProbeCompletedEvent) {
	probesTotal.WithLabelValues(e.Outcome, strconv.FormatBool(e.Healthy)).Inc()
	probeDuration.Observe(e.DurationMs / 1000)
	probeStatusCode.Set(float64(e.StatusCode))
	if e.Healthy {
		serverUp.Set(1)
	} else {
		serverUp.Set(0)
	}
}

// RecordRemediation counts a remediation cycle.
func RecordRemediation(events.RemediationStartedEvent) {
	remediationsTotal.Inc()
}

// RecordKill records a KillAll batch.
func RecordKill(e events.ProcessesKilledEvent) {
	processesKilled.Add(float64(len(e.PIDs)))
	killFailures.Add(float64(e.Failed))
}

// RecordStart counts a launch of the supervised executable.
func RecordStart(e events.ProcessStartedEvent) {
	processStarts.WithLabelValues(strconv.FormatBool(e.Discovered)).Inc()
}

// SetState marks state as the current loop state.
func SetState(state string) {
	for _, s := range knownStates {
		if s == state {
			loopState.WithLabelValues(s).Set(1)
		} else {
			loopState.WithLabelValues(s).Set(0)
		}
	}
}

// Subscribe feeds the metrics from bus. The returned function unsubscribes.
func Subscribe(bus *events.Bus) func() {
	unsubscribers := []func(){
		bus.Subscribe(RecordProbe),
		bus.Subscribe(RecordRemediation),
		bus.Subscribe(RecordKill),
		bus.Subscribe(RecordStart),
		bus.Subscribe(func(e events.StateChangedEvent) { SetState(e.To) }),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}
