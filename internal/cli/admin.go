package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func parseVersion(arg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(arg), "v"))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", arg)
	}
	return v, nil
}

func formatVersions(versions []int) string {
	if len(versions) == 0 {
		return "none"
	}
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func newUnlockCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "unlock <asset>",
		Short: "Break an asset lock",
		Long: `Clear the lock flag of an asset. If your workspace holds a working copy of
the latest version it is moved aside so it cannot be checked in by mistake.`,
		Args: cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		moved, err := app.engine.Unlock(app.ctx(cmd), app.identity, app.path(args[0]))
		if err != nil {
			return err
		}
		if moved != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "working copy moved to %s\n", moved)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", app.path(args[0]))
		return nil
	})
}

func newRollbackCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "rollback <asset> <version>",
		Short: "Check out an older version for checkin as the next version",
		Args:  cobra.ExactArgs(2),
	}, func(cmd *cobra.Command, args []string) error {
		target, err := parseVersion(args[1])
		if err != nil {
			return err
		}
		dest, err := app.engine.Rollback(app.ctx(cmd), app.identity, app.path(args[0]), target)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dest)
		return nil
	})
}

func newSetVersionCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "set-version <asset> <version>",
		Short: "Make an older version the latest, deleting newer ones",
		Long: `Make an existing version the latest one. Every newer version is deleted,
the lock is released and your working copy is removed. You must hold the
lock through a working copy of the current latest version.`,
		Args: cobra.ExactArgs(2),
	}, func(cmd *cobra.Command, args []string) error {
		v, err := parseVersion(args[1])
		if err != nil {
			return err
		}
		if err := app.engine.SetVersion(app.ctx(cmd), app.identity, app.path(args[0]), v); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "latest version is now %d\n", v)
		return nil
	})
}

func newPurgeCmd(app *App) *cobra.Command {
	var upTo, after int
	cmd := engineCmd(app, &cobra.Command{
		Use:   "purge <asset>",
		Short: "Delete stored versions",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		asset := app.path(args[0])
		var (
			removed []int
			err     error
		)
		if cmd.Flags().Changed("up-to") {
			removed, err = app.engine.PurgeUpTo(app.ctx(cmd), asset, upTo)
		} else {
			removed, err = app.engine.PurgeAfter(app.ctx(cmd), asset, after)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged versions: %s\n", formatVersions(removed))
		return nil
	})
	cmd.Flags().IntVar(&upTo, "up-to", 0, "delete versions below this one")
	cmd.Flags().IntVar(&after, "after", 0, "delete versions above this one and make it the latest")
	cmd.MarkFlagsMutuallyExclusive("up-to", "after")
	cmd.MarkFlagsOneRequired("up-to", "after")
	return cmd
}

func newRecoverCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "recover",
		Short: "Clean up after operations interrupted by a crash",
		Args:  cobra.NoArgs,
	}, func(cmd *cobra.Command, args []string) error {
		if app.journal == nil {
			return fmt.Errorf("journal is disabled")
		}
		report, err := app.engine.Recover(app.ctx(cmd))
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "operations: %d committed, %d aborted, %d pending, %d recovered, %d still running\n",
			report.Stats.CommittedOps, report.Stats.AbortedOps, report.Stats.PendingOps, report.Stats.RecoveredOps, report.Stats.ActiveOps)
		for _, path := range report.Removed {
			fmt.Fprintf(out, "removed %s\n", path)
		}
		return nil
	})
}

func newNextFolderCmd(app *App) *cobra.Command {
	var prefix string
	cmd := engineCmd(app, &cobra.Command{
		Use:   "next-folder <dir>",
		Short: "Print the next numbered output folder, creating it if needed",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		path, err := app.engine.NextVersionFolder(app.path(args[0]), prefix)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	})
	cmd.Flags().StringVar(&prefix, "prefix", "", "folder name prefix")
	return cmd
}
