// Package systemd integrates the supervisor with systemd: sd_notify
// readiness, status and watchdog pings, plus read-only unit status over D-Bus.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/logging"
)

// NotifyFunc sends a state string to the service manager.
// It matches daemon.SdNotify.
type NotifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier reports supervisor progress through sd_notify. Without
// NOTIFY_SOCKET every call is a no-op.
type Notifier struct {
	notify NotifyFunc
	logger *slog.Logger
	now    func() time.Time

	// stallAfter is how long the loop may stay silent before watchdog pings
	// are withheld. Zero requires progress between two consecutive pings.
	stallAfter   time.Duration
	lastProgress atomic.Int64
	pingedAt     atomic.Int64
	stalled      atomic.Bool

	readyOnce sync.Once
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithStallTimeout sets the longest quiet period of the supervision loop
// that still counts as progress for watchdog pings.
func WithStallTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.stallAfter = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier creates a notifier backed by daemon.SdNotify.
func NewNotifier(opts ...NotifierOption) *Notifier {
	return NewNotifierWith(daemon.SdNotify, opts...)
}

// NewNotifierWith creates a notifier that sends through fn.
func NewNotifierWith(fn NotifyFunc, opts ...NotifierOption) *Notifier {
	n := &Notifier{notify: fn, logger: logging.GetLogger("systemd"), now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Ready reports READY=1 once; later calls are ignored.
func (n *Notifier) Ready() {
	n.readyOnce.Do(func() { n.send(daemon.SdNotifyReady) })
}

// Status reports a free-form status line.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + msg)
}

// Stopping reports STOPPING=1.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Subscribe forwards loop events as status lines and records them as loop
// progress. Readiness is reported as soon as the loop starts initializing,
// before the first start check and its grace period.
func (n *Notifier) Subscribe(bus *events.Bus) func() {
	unsubState := bus.Subscribe(func(e events.StateChangedEvent) {
		n.markProgress()
		n.Status("watchdog " + e.To)
		if e.To == "initializing" {
			n.Ready()
		}
	})
	unsubProbe := bus.Subscribe(func(events.ProbeCompletedEvent) {
		n.markProgress()
	})
	unsubRemediation := bus.Subscribe(func(e events.RemediationStartedEvent) {
		n.markProgress()
		n.Status("restarting server: " + e.Reason)
	})
	unsubKilled := bus.Subscribe(func(e events.ProcessesKilledEvent) {
		n.markProgress()
		n.Status(fmt.Sprintf("killed %d server processes, settling", len(e.PIDs)))
	})
	unsubStarted := bus.Subscribe(func(e events.ProcessStartedEvent) {
		n.markProgress()
		n.Status(fmt.Sprintf("server started (pid %d), waiting for grace period", e.PID))
	})
	return func() {
		unsubState()
		unsubProbe()
		unsubRemediation()
		unsubKilled()
		unsubStarted()
	}
}

func (n *Notifier) markProgress() {
	n.lastProgress.Store(n.now().UnixNano())
}

// alive reports whether the loop made progress recently enough to ping.
func (n *Notifier) alive() bool {
	last := n.lastProgress.Load()
	if last == 0 {
		return false
	}
	if n.stallAfter > 0 {
		return n.now().Sub(time.Unix(0, last)) <= n.stallAfter
	}
	return last > n.pingedAt.Load()
}

// RunWatchdog sends WATCHDOG=1 at half of WatchdogSec until ctx is done.
// Pings are withheld while the supervision loop makes no progress, so systemd
// restarts a supervisor stuck in a kill or launch.
// It returns immediately when the unit has no watchdog configured.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid systemd watchdog settings", "error", err)
		return
	}
	if interval == 0 {
		return
	}
	n.runWatchdog(ctx, interval/2)
}

func (n *Notifier) runWatchdog(ctx context.Context, every time.Duration) {
	n.logger.Info("systemd watchdog enabled", "ping_interval", every, "stall_timeout", n.stallAfter)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.ping()
		}
	}
}

func (n *Notifier) ping() {
	if !n.alive() {
		if !n.stalled.Swap(true) {
			n.logger.Warn("Supervision loop made no progress, withholding watchdog ping")
		}
		return
	}
	if n.stalled.Swap(false) {
		n.logger.Info("Supervision loop progressing again, watchdog pings resumed")
	}
	n.pingedAt.Store(n.now().UnixNano())
	n.send(daemon.SdNotifyWatchdog)
}
