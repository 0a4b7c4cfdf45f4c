// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package and fans every record out to:
//   - the log file (the supervisor's append-only sink), one line per entry
//     starting with a timestamp
//   - the systemd journal when journald is reachable
//   - stdout when console echo is enabled (the --verbose flag), or when no
//     other destination is configured
//   - an in-memory ring buffer served by the status API
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	err := logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		File:    "/var/log/plexwatch.log",
//		Console: verbose,
//		Modules: map[string]string{
//			"watchdog": "debug",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("process")
//	logger.Info("Process started", "pid", pid)
//
// Levels can be changed later without reopening outputs:
//
//	logging.SetLevels("warn", map[string]string{"health": "debug"})
//
// # Log File Format
//
//	2026-01-02 15:04:05.000 [WARN] [watchdog] Health check failed outcome=timeout
//
// # Viewing Journal Logs
//
//	journalctl -t plexwatch -f
//	journalctl -t plexwatch MODULE=process
package logging
