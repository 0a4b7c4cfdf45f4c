package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/smazurov/plexwatch/internal/process"
	"github.com/spf13/cobra"
)

// CreateLocateCmd creates the locate command, which shows the executable the
// watchdog would launch and the processes it would kill.
func CreateLocateCmd(settings SettingsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Resolve the server executable and list matching processes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := settings()
			if err != nil {
				return err
			}

			controller := process.NewController(&cfg)
			out := cmd.OutOrStdout()

			res, err := controller.ResolveExecutable()
			switch {
			case errors.Is(err, process.ErrExecutableNotFound):
				fmt.Fprintf(out, "executable: not found (%v)\n", err)
			case err != nil:
				return err
			case res.Discovered:
				fmt.Fprintf(out, "executable: %s (discovered, configured path %s is missing)\n", res.Path, cfg.ExecutablePath)
			default:
				fmt.Fprintf(out, "executable: %s\n", res.Path)
			}

			entries, err := controller.Matching(cfg.ProcessPattern)
			if err != nil {
				return fmt.Errorf("read process table: %w", err)
			}
			fmt.Fprintf(out, "processes matching %q: %d\n", cfg.ProcessPattern, len(entries))
			if len(entries) == 0 {
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tNAME")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\n", e.PID, e.Name)
			}
			return w.Flush()
		},
	}
}
