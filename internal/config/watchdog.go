package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Defaults for the supervised Plex Media Server install.
const (
	DefaultHealthURL      = "http://127.0.0.1:32400/identity"
	DefaultExecutablePath = "/usr/lib/plexmediaserver/Plex Media Server"
	DefaultProcessName    = "Plex Media Server"
	DefaultProcessPattern = "Plex*"
	DefaultPollInterval   = 60 * time.Second
	DefaultGracePeriod    = 120 * time.Second
	DefaultSettlePeriod   = 15 * time.Second
	DefaultProbeTimeout   = 15 * time.Second
)

// DefaultInstallRoots are searched recursively when the configured executable is missing.
var DefaultInstallRoots = []string{"/usr/lib/plexmediaserver", "/usr/lib", "/opt", "/usr/local"}

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Watchdog is the supervisor configuration. It is built once at startup and
// shared read-only by the supervision loop and the process controller.
type Watchdog struct {
	HealthURL      string
	ExecutablePath string
	ExecutableArgs []string
	ProcessName    string // exact name of the primary process
	ProcessPattern string // wildcard covering every process of the application
	InstallRoots   []string
	PollInterval   time.Duration
	GracePeriod    time.Duration
	SettlePeriod   time.Duration
	ProbeTimeout   time.Duration
	Verbose        bool
}

// DefaultWatchdog returns a configuration populated with defaults.
func DefaultWatchdog() Watchdog {
	return Watchdog{
		HealthURL:      DefaultHealthURL,
		ExecutablePath: DefaultExecutablePath,
		ProcessName:    DefaultProcessName,
		ProcessPattern: DefaultProcessPattern,
		InstallRoots:   append([]string(nil), DefaultInstallRoots...),
		PollInterval:   DefaultPollInterval,
		GracePeriod:    DefaultGracePeriod,
		SettlePeriod:   DefaultSettlePeriod,
		ProbeTimeout:   DefaultProbeTimeout,
	}
}

// ExecutableName is the file name searched for under InstallRoots.
func (w *Watchdog) ExecutableName() string {
	return filepath.Base(w.ExecutablePath)
}

// StallTimeout is the longest the supervision loop stays quiet while healthy:
// a launch grace period or a poll sleep, followed by a settle wait and a probe.
func (w *Watchdog) StallTimeout() time.Duration {
	return max(w.GracePeriod, w.PollInterval) + w.SettlePeriod + w.ProbeTimeout
}

// Validate reports every unusable setting, wrapped in ErrInvalidConfig.
func (w *Watchdog) Validate() error {
	var problems []error

	u, err := url.Parse(w.HealthURL)
	switch {
	case w.HealthURL == "":
		problems = append(problems, errors.New("health URL is required"))
	case err != nil:
		problems = append(problems, fmt.Errorf("health URL: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		problems = append(problems, fmt.Errorf("health URL scheme %q is not http or https", u.Scheme))
	case u.Host == "":
		problems = append(problems, errors.New("health URL has no host"))
	}

	if w.ExecutablePath == "" {
		problems = append(problems, errors.New("executable path is required"))
	}
	if w.ProcessName == "" {
		problems = append(problems, errors.New("process name is required"))
	}
	if w.ProcessPattern == "" || !doublestar.ValidatePattern(w.ProcessPattern) {
		problems = append(problems, fmt.Errorf("process pattern %q is not a valid wildcard", w.ProcessPattern))
	}

	for _, c := range []struct {
		name string
		d    time.Duration
	}{
		{"poll interval", w.PollInterval},
		{"grace period", w.GracePeriod},
		{"settle period", w.SettlePeriod},
		{"probe timeout", w.ProbeTimeout},
	} {
		if c.d <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive, got %s", c.name, c.d))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}
