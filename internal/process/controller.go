package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/smazurov/plexwatch/internal/config"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/logging"
)

// ErrExecutableNotFound means the executable exists neither at the configured
// path nor under any install root. The supervisor cannot continue.
var ErrExecutableNotFound = errors.New("executable not found")

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if ctx finishes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Controller starts and stops the supervised process.
type Controller struct {
	cfg      *config.Watchdog
	table    Table
	launcher Launcher
	killer   Killer
	sleep    SleepFunc
	bus      *events.Bus
	logger   *slog.Logger
	selfPID  int
}

// Option configures a Controller.
type Option func(*Controller)

// WithTable sets the process table.
func WithTable(t Table) Option {
	return func(c *Controller) { c.table = t }
}

// WithLauncher sets the launcher.
func WithLauncher(l Launcher) Option {
	return func(c *Controller) { c.launcher = l }
}

// WithKiller sets the killer.
func WithKiller(k Killer) Option {
	return func(c *Controller) { c.killer = k }
}

// WithSleep sets the function used for grace and settle waits.
func WithSleep(fn SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithEventBus publishes process lifecycle events to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates a controller for cfg. cfg is never modified.
// Without options it reads /proc, launches with ExecLauncher and kills with SIGKILL.
func NewController(cfg *config.Watchdog, opts ...Option) *Controller {
	if cfg == nil {
		panic("process: nil config")
	}
	c := &Controller{
		cfg:      cfg,
		table:    NewProcTable(),
		launcher: ExecLauncher{},
		killer:   SignalKiller{},
		sleep:    Sleep,
		selfPID:  os.Getpid(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.GetLogger("process")
	}
	return c
}

// Running returns the processes whose name equals the configured process name.
func (c *Controller) Running() ([]Entry, error) {
	entries, err := c.table.List()
	if err != nil {
		return nil, err
	}
	return FindByName(entries, c.cfg.ProcessName), nil
}

// Matching returns the processes matching pattern, excluding the supervisor itself.
func (c *Controller) Matching(pattern string) ([]Entry, error) {
	entries, err := c.table.List()
	if err != nil {
		return nil, err
	}
	matched, err := MatchPattern(entries, pattern)
	if err != nil {
		return nil, err
	}
	out := matched[:0]
	for _, e := range matched {
		if e.PID != c.selfPID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ResolveExecutable returns the executable that would be launched right now.
// The configuration is not updated when the path had to be discovered.
func (c *Controller) ResolveExecutable() (Resolution, error) {
	return resolveExecutable(c.cfg.ExecutablePath, c.cfg.InstallRoots)
}

// EnsureStarted launches the supervised process unless one with the exact
// configured name is already running. firstRun only affects logging.
//
// It returns ErrExecutableNotFound when there is nothing to launch, the launch
// error when the OS refuses to start the executable, and ctx.Err() when
// cancelled during the grace period.
func (c *Controller) EnsureStarted(ctx context.Context, firstRun bool) error {
	running, err := c.Running()
	if err != nil {
		c.logger.Warn("Failed to read process table, assuming not running", "error", err)
	}
	if len(running) > 0 {
		if firstRun {
			c.logger.Info("Process already running", "name", c.cfg.ProcessName, "pid", running[0].PID)
		} else {
			c.logger.Debug("Process already running", "name", c.cfg.ProcessName, "pid", running[0].PID)
		}
		return nil
	}

	c.logger.Info("Process not running", "name", c.cfg.ProcessName, "first_run", firstRun)

	res, err := c.ResolveExecutable()
	if err != nil {
		c.logger.Error("Executable not found, cannot supervise",
			"path", c.cfg.ExecutablePath,
			"install_roots", strings.Join(c.cfg.InstallRoots, ","))
		c.bus.Publish(events.ExecutableMissingEvent{
			Path:      c.cfg.ExecutablePath,
			Roots:     append([]string(nil), c.cfg.InstallRoots...),
			Timestamp: events.Now(),
		})
		return err
	}
	if res.Discovered {
		c.logger.Warn("Configured executable missing, using discovered path",
			"configured", c.cfg.ExecutablePath, "discovered", res.Path)
	}

	pid, err := c.launcher.Launch(res.Path, c.cfg.ExecutableArgs)
	if err != nil {
		c.logger.Error("Failed to launch process", "path", res.Path, "error", err)
		return err
	}

	c.logger.Info("Process launched", "path", res.Path, "pid", pid, "grace_period", c.cfg.GracePeriod)
	c.bus.Publish(events.ProcessStartedEvent{
		Path:       res.Path,
		PID:        pid,
		Discovered: res.Discovered,
		FirstRun:   firstRun,
		Timestamp:  events.Now(),
	})

	return c.sleep(ctx, c.cfg.GracePeriod)
}

// KillAll force-kills every process whose name matches pattern, then waits
// for the settle period. Nothing is waited for when nothing matched.
// Enumeration and kill failures are logged; only ctx errors are returned.
func (c *Controller) KillAll(ctx context.Context, pattern string) error {
	matched, err := c.Matching(pattern)
	if err != nil {
		c.logger.Warn("Failed to enumerate processes, nothing killed", "pattern", pattern, "error", err)
		return nil
	}
	if len(matched) == 0 {
		c.logger.Info("No matching processes to kill", "pattern", pattern)
		return nil
	}

	names := make([]string, 0, len(matched))
	pids := make([]int, 0, len(matched))
	failed := 0
	for _, e := range matched {
		c.logger.Info("Killing process", "name", e.Name, "pid", e.PID)
		names = append(names, e.Name)
		pids = append(pids, e.PID)
		if killErr := c.killer.Kill(e.PID); killErr != nil {
			failed++
			c.logger.Warn("Failed to kill process", "name", e.Name, "pid", e.PID, "error", killErr)
		}
	}

	c.logger.Info("Killed matching processes",
		"pattern", pattern, "count", len(matched), "failed", failed, "settle_period", c.cfg.SettlePeriod)
	c.bus.Publish(events.ProcessesKilledEvent{
		Pattern:   pattern,
		Names:     names,
		PIDs:      pids,
		Failed:    failed,
		Timestamp: events.Now(),
	})

	return c.sleep(ctx, c.cfg.SettlePeriod)
}
