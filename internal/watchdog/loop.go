// Package watchdog runs the supervision state machine.
//
// The loop starts in StateInitializing, makes sure the server is running,
// then alternates between StatePolling (probe, sleep) and StateRemediating
// (kill the process family, start the server again). It is strictly
// sequential: one probe at a time, never a probe during remediation.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/smazurov/plexwatch/internal/config"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/health"
	"github.com/smazurov/plexwatch/internal/logging"
	"github.com/smazurov/plexwatch/internal/process"
)

// State is the supervision loop state.
type State string

// Loop states.
const (
	StateInitializing State = "initializing"
	StatePolling      State = "polling"
	StateRemediating  State = "remediating"
)

// Controller is the subset of process.Controller the loop drives.
type Controller interface {
	EnsureStarted(ctx context.Context, firstRun bool) error
	KillAll(ctx context.Context, pattern string) error
}

// Loop is the supervision state machine.
type Loop struct {
	cfg        *config.Watchdog
	controller Controller
	prober     health.Prober
	sleep      process.SleepFunc
	incidentID func() string
	bus        *events.Bus
	logger     *slog.Logger

	mu    sync.RWMutex
	state State
}

// Option configures a Loop.
type Option func(*Loop)

// WithSleep sets the function used for poll interval waits.
func WithSleep(fn process.SleepFunc) Option {
	return func(l *Loop) { l.sleep = fn }
}

// WithEventBus publishes state changes, probes and remediations to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(l *Loop) { l.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithIncidentIDs sets the generator for remediation incident IDs.
func WithIncidentIDs(fn func() string) Option {
	return func(l *Loop) { l.incidentID = fn }
}

// New creates a loop. cfg, controller and prober are required.
func New(cfg *config.Watchdog, controller Controller, prober health.Prober, opts ...Option) *Loop {
	if cfg == nil || controller == nil || prober == nil {
		panic("watchdog: nil config, controller or prober")
	}
	l := &Loop{
		cfg:        cfg,
		controller: controller,
		prober:     prober,
		sleep:      process.Sleep,
		incidentID: uuid.NewString,
		state:      StateInitializing,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.GetLogger("watchdog")
	}
	return l
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) setState(next State) {
	l.mu.Lock()
	prev := l.state
	l.state = next
	l.mu.Unlock()

	if prev == next {
		return
	}
	l.logger.Debug("State changed", "from", prev, "to", next)
	l.bus.Publish(events.StateChangedEvent{From: string(prev), To: string(next), Timestamp: events.Now()})
}

// Run supervises until ctx is cancelled or the executable cannot be found.
// It returns ctx.Err() on cancellation and an error wrapping
// process.ErrExecutableNotFound when there is nothing left to supervise.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Watchdog starting",
		"health_url", l.cfg.HealthURL,
		"process", l.cfg.ProcessName,
		"poll_interval", l.cfg.PollInterval,
		"grace_period", l.cfg.GracePeriod)
	l.bus.Publish(events.StateChangedEvent{To: string(StateInitializing), Timestamp: events.Now()})

	if err := l.start(ctx, true); err != nil {
		return err
	}
	l.setState(StatePolling)

	for {
		if err := l.poll(ctx); err != nil {
			return err
		}
	}
}

// poll runs one Polling iteration: probe, then either wait or remediate.
func (l *Loop) poll(ctx context.Context) error {
	res := l.prober.Probe(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	l.publishProbe(res)

	if res.Healthy() {
		if l.cfg.Verbose {
			l.logger.Info("Health check passed", "status", res.StatusCode, "duration", res.Duration)
		} else {
			l.logger.Debug("Health check passed", "status", res.StatusCode, "duration", res.Duration)
		}
		return l.sleep(ctx, l.cfg.PollInterval)
	}

	return l.remediate(ctx, res)
}

// remediate kills the whole process family and starts the server again.
// The next probe follows immediately.
func (l *Loop) remediate(ctx context.Context, res health.Result) error {
	incident := l.incidentID()
	l.setState(StateRemediating)

	l.logger.Warn("Health check failed, restarting",
		"incident", incident,
		"reason", res.Reason(),
		"outcome", res.Outcome.String(),
		"status", res.StatusCode)
	l.bus.Publish(events.RemediationStartedEvent{
		IncidentID: incident,
		Reason:     res.Reason(),
		Timestamp:  events.Now(),
	})

	if err := l.controller.KillAll(ctx, l.cfg.ProcessPattern); err != nil {
		return err
	}
	if err := l.start(ctx, false); err != nil {
		return err
	}

	l.logger.Info("Remediation finished", "incident", incident)
	l.setState(StatePolling)
	return nil
}

// start calls EnsureStarted. Only a missing executable and cancellation end
// the loop. Other failures are logged and followed by a poll interval wait.
func (l *Loop) start(ctx context.Context, firstRun bool) error {
	err := l.controller.EnsureStarted(ctx, firstRun)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrExecutableNotFound):
		return fmt.Errorf("watchdog: %w", err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		l.logger.Warn("Failed to start process, will probe again", "error", err, "retry_in", l.cfg.PollInterval)
		return l.sleep(ctx, l.cfg.PollInterval)
	}
}

func (l *Loop) publishProbe(res health.Result) {
	e := events.ProbeCompletedEvent{
		URL:        l.cfg.HealthURL,
		Outcome:    res.Outcome.String(),
		StatusCode: res.StatusCode,
		Healthy:    res.Healthy(),
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
		Timestamp:  events.Now(),
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	l.bus.Publish(e)
}
