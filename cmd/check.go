package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/smazurov/plexwatch/internal/config"
	"github.com/smazurov/plexwatch/internal/health"
	"github.com/spf13/cobra"
)

// SettingsFunc returns the validated watchdog settings of the root command.
type SettingsFunc func() (config.Watchdog, error)

// CreateCheckCmd creates the check command, which runs a single health probe.
// It exits 0 when the server answered 200 and 1 otherwise.
func CreateCheckCmd(settings SettingsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the media server once",
		Long:  `Sends one health probe to the configured URL and reports the outcome. Nothing is killed or started.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := settings()
			if err != nil {
				return err
			}

			res := health.NewHTTPProber(cfg.HealthURL, cfg.ProbeTimeout).Probe(context.Background())
			out := cmd.OutOrStdout()
			if res.Healthy() {
				fmt.Fprintf(out, "healthy: %s answered 200 in %s\n", cfg.HealthURL, res.Duration.Round(time.Millisecond))
				return nil
			}

			fmt.Fprintf(out, "unhealthy: %s (%s)\n", cfg.HealthURL, res.Reason())
			os.Exit(1)
			return nil
		},
	}
}
