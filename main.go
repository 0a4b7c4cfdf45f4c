package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/plexwatch/cmd"
	"github.com/smazurov/plexwatch/internal/api"
	"github.com/smazurov/plexwatch/internal/config"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/health"
	"github.com/smazurov/plexwatch/internal/logging"
	"github.com/smazurov/plexwatch/internal/metrics"
	"github.com/smazurov/plexwatch/internal/metrics/exporters"
	"github.com/smazurov/plexwatch/internal/process"
	"github.com/smazurov/plexwatch/internal/status"
	"github.com/smazurov/plexwatch/internal/systemd"
	"github.com/smazurov/plexwatch/internal/version"
	"github.com/smazurov/plexwatch/internal/watchdog"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"plexwatch.toml"`

	// Watchdog settings
	HealthURL      string `help:"URL probed with HTTP GET; only status 200 is healthy" default:"http://127.0.0.1:32400/identity" toml:"watchdog.health_url" env:"HEALTH_URL"`
	Executable     string `help:"Path of the server executable" default:"/usr/lib/plexmediaserver/Plex Media Server" toml:"watchdog.executable" env:"EXECUTABLE"`
	ExecutableArgs string `help:"Arguments passed to the executable, shell quoting allowed" default:"" toml:"watchdog.executable_args" env:"EXECUTABLE_ARGS"`
	ProcessName    string `help:"Exact name of the primary server process" default:"Plex Media Server" toml:"watchdog.process_name" env:"PROCESS_NAME"`
	ProcessPattern string `help:"Wildcard matching every server process" default:"Plex*" toml:"watchdog.process_pattern" env:"PROCESS_PATTERN"`
	InstallRoots   string `help:"Comma-separated directories searched when the executable is missing" default:"/usr/lib/plexmediaserver,/usr/lib,/opt,/usr/local" toml:"watchdog.install_roots" env:"INSTALL_ROOTS"`
	PollInterval   int    `help:"Seconds between healthy probes" default:"60" toml:"watchdog.poll_interval" env:"POLL_INTERVAL"`
	GracePeriod    int    `help:"Seconds to wait after launching the server" default:"120" toml:"watchdog.grace_period" env:"GRACE_PERIOD"`
	SettlePeriod   int    `help:"Seconds to wait after killing server processes" default:"15" toml:"watchdog.settle_period" env:"SETTLE_PERIOD"`
	ProbeTimeout   int    `help:"Seconds before a probe times out" default:"15" toml:"watchdog.probe_timeout" env:"PROBE_TIMEOUT"`
	Verbose        bool   `help:"Echo log lines to the console" default:"false" toml:"watchdog.verbose" env:"VERBOSE"`

	// API settings
	APIListen    string `help:"Status API listen address, empty disables the API" default:"" toml:"api.listen" env:"API_LISTEN"`
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// systemd settings
	SystemdUnit string `help:"systemd unit of the server, reported by the status API" default:"" toml:"systemd.unit" env:"SYSTEMD_UNIT"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingFile     string `help:"Log sink file, one line per entry" default:"plexwatch.log" toml:"logging.file" env:"LOGGING_FILE"`
	LoggingWatchdog string `help:"Supervision loop logging level" default:"info" toml:"logging.watchdog" env:"LOGGING_WATCHDOG"`
	LoggingProcess  string `help:"Process controller logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// watchdogConfig converts the flat options into validated watchdog settings.
func (o *Options) watchdogConfig() (config.Watchdog, error) {
	args, err := process.ParseArgs(o.ExecutableArgs)
	if err != nil {
		return config.Watchdog{}, fmt.Errorf("%w: executable args: %w", config.ErrInvalidConfig, err)
	}

	cfg := config.Watchdog{
		HealthURL:      o.HealthURL,
		ExecutablePath: o.Executable,
		ExecutableArgs: args,
		ProcessName:    o.ProcessName,
		ProcessPattern: o.ProcessPattern,
		InstallRoots:   config.SplitList(o.InstallRoots),
		PollInterval:   time.Duration(o.PollInterval) * time.Second,
		GracePeriod:    time.Duration(o.GracePeriod) * time.Second,
		SettlePeriod:   time.Duration(o.SettlePeriod) * time.Second,
		ProbeTimeout:   time.Duration(o.ProbeTimeout) * time.Second,
		Verbose:        o.Verbose,
	}
	if err := cfg.Validate(); err != nil {
		return config.Watchdog{}, err
	}
	return cfg, nil
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		File:    o.LoggingFile,
		Console: o.Verbose,
		Modules: map[string]string{
			"watchdog": o.LoggingWatchdog,
			"process":  o.LoggingProcess,
			"api":      o.LoggingAPI,
		},
	}
}

func main() {
	var cli humacli.CLI
	var options *Options

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		options = opts

		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Buffered log entries are republished for the log stream
		logging.SetLogCallback(api.LogCallback(eventBus))
		if initErr := logging.Initialize(opts.loggingConfig()); initErr != nil {
			slog.Warn("Failed to initialize logging", "error", initErr)
		}

		logger := logging.GetLogger("main")
		logger.Info("Starting", "version", version.String())

		cfg, cfgErr := opts.watchdogConfig()
		if cfgErr != nil {
			hooks.OnStart(func() {
				logger.Error("Invalid configuration", "error", cfgErr)
				os.Exit(1)
			})
			return
		}

		// Log levels follow the config file without a restart
		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logging.GetLogger("config"))
		watcher.OnReload(func(lc logging.Config) {
			logging.SetLevels(lc.Level, lc.Modules)
		})

		unsubMetrics := metrics.Subscribe(eventBus)
		tracker := status.NewTracker()
		unsubTracker := tracker.Subscribe(eventBus)
		notifier := systemd.NewNotifier(systemd.WithStallTimeout(cfg.StallTimeout()))
		unsubNotifier := notifier.Subscribe(eventBus)

		controller := process.NewController(&cfg, process.WithEventBus(eventBus))
		prober := health.NewHTTPProber(cfg.HealthURL, cfg.ProbeTimeout)
		loop := watchdog.New(&cfg, controller, prober, watchdog.WithEventBus(eventBus))

		ctx, cancel := context.WithCancel(context.Background())
		loopDone := make(chan struct{})

		var server *api.Server
		var unitManager *systemd.Manager

		hooks.OnStart(func() {
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Config file not watched", "path", opts.Config, "error", startErr)
			}

			go notifier.RunWatchdog(ctx)

			if opts.APIListen != "" {
				apiOpts := &api.Options{
					AuthUsername:      opts.AuthUsername,
					AuthPassword:      opts.AuthPassword,
					Tracker:           tracker,
					EventBus:          eventBus,
					Processes:         controller,
					ProcessPattern:    cfg.ProcessPattern,
					PrometheusHandler: exporters.HTTPHandler(),
				}
				if opts.SystemdUnit != "" {
					m, dbusErr := systemd.NewManager(ctx)
					if dbusErr != nil {
						logger.Warn("systemd unit status unavailable", "error", dbusErr)
					} else {
						unitManager = m
						apiOpts.Systemd = m
						apiOpts.SystemdUnit = opts.SystemdUnit
					}
				}
				server = api.NewServer(apiOpts)
				go func() {
					if startErr := server.Start(opts.APIListen); startErr != nil {
						logger.Error("Failed to start status API", "error", startErr)
					}
				}()
			}

			runErr := loop.Run(ctx)
			close(loopDone)

			if errors.Is(runErr, process.ErrExecutableNotFound) {
				logger.Error("Server executable not found, exiting", "error", runErr)
				notifier.Stopping()
				_ = logging.Close()
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()
			cancel()
			<-loopDone

			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping status API", "error", stopErr)
				}
			}
			if unitManager != nil {
				unitManager.Close()
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}

			unsubNotifier()
			unsubTracker()
			unsubMetrics()
			_ = logging.Close()
		})
	})

	settings := func() (config.Watchdog, error) {
		return options.watchdogConfig()
	}
	cli.Root().AddCommand(cmd.CreateCheckCmd(settings))
	cli.Root().AddCommand(cmd.CreateLocateCmd(settings))
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	// Run the CLI
	cli.Run()
}
