package cmd

import (
	"errors"
	"fmt"

	"github.com/smazurov/plexwatch/internal/updater"
	"github.com/spf13/cobra"
)

// CreateUpdateCmd creates the update command, which replaces the plexwatch
// binary with the latest GitHub release.
func CreateUpdateCmd() *cobra.Command {
	var (
		checkOnly  bool
		rollback   bool
		prerelease bool
		repository string
	)

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update plexwatch to the latest release",
		Long:  `Downloads the latest release over the running binary, keeping a backup. Restart the service afterwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := updater.New(updater.Options{Repository: repository, Prerelease: prerelease})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if rollback {
				restored, rbErr := u.Rollback()
				if rbErr != nil {
					return rbErr
				}
				fmt.Fprintf(out, "restored %s, restart plexwatch to run it\n", restored)
				return nil
			}

			if checkOnly {
				info, checkErr := u.CheckForUpdate(ctx)
				if checkErr != nil {
					return checkErr
				}
				if info.UpdateAvailable {
					fmt.Fprintf(out, "update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
				} else {
					fmt.Fprintf(out, "up to date: %s\n", info.CurrentVersion)
				}
				return nil
			}

			info, err := u.Apply(ctx)
			var uerr *updater.Error
			if errors.As(err, &uerr) && uerr.Code == updater.ErrCodeNoUpdate {
				fmt.Fprintf(out, "up to date: %s\n", info.CurrentVersion)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "updated %s -> %s, restart plexwatch to run it\n", info.CurrentVersion, info.LatestVersion)
			return nil
		},
	}

	updateCmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	updateCmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the binary saved by the last update")
	updateCmd.Flags().BoolVar(&prerelease, "prerelease", false, "Include prereleases")
	updateCmd.Flags().StringVar(&repository, "repository", updater.DefaultRepository, "GitHub repository slug")
	return updateCmd
}
