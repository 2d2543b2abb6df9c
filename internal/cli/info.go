package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nainya/assetstore/pkg/metadata"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return metadata.FormatTime(t)
}

// workingCopyStatus is the JSON shape of a working copy's status
type workingCopyStatus struct {
	WorkingCopy  string    `json:"working_copy"`
	Asset        string    `json:"asset"`
	Version      int       `json:"version"`
	CheckoutTime time.Time `json:"checkout_time"`
	Exclusive    bool      `json:"exclusive"`
	RestoredFrom int       `json:"restored_from,omitempty"`
	CanCheckin   bool      `json:"can_checkin"`
}

func newStatusCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "status <asset|working-copy>",
		Short: "Show the state of an asset or a working copy",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if wc := app.workingCopy(args[0]); app.query.IsWorkingCopy(wc) {
			co, err := app.query.WorkingCopyInfo(wc)
			if err != nil {
				return err
			}
			status := workingCopyStatus{
				WorkingCopy:  wc,
				Asset:        co.CheckedOutFrom,
				Version:      co.Version,
				CheckoutTime: co.CheckoutTime,
				Exclusive:    co.LockedByMe,
				CanCheckin:   app.query.CanCheckin(wc, app.identity.Login),
			}
			if co.RestoredFrom >= 0 {
				status.RestoredFrom = co.RestoredFrom
			}
			if app.jsonOutput {
				return writeJSON(out, status)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "working copy:\t%s\n", status.WorkingCopy)
			fmt.Fprintf(tw, "asset:\t%s\n", status.Asset)
			fmt.Fprintf(tw, "version:\t%d\n", status.Version)
			if co.RestoredFrom >= 0 {
				fmt.Fprintf(tw, "restored from:\t%d\n", co.RestoredFrom)
			}
			fmt.Fprintf(tw, "checked out:\t%s\n", formatTime(status.CheckoutTime))
			fmt.Fprintf(tw, "exclusive:\t%t\n", status.Exclusive)
			fmt.Fprintf(tw, "can check in:\t%t\n", status.CanCheckin)
			return tw.Flush()
		}

		summary, err := app.query.Summary(app.path(args[0]))
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return writeJSON(out, summary)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "asset:\t%s\n", summary.Asset)
		if summary.Type != "" {
			fmt.Fprintf(tw, "type:\t%s\n", summary.Type)
		}
		fmt.Fprintf(tw, "latest version:\t%d\n", summary.LatestVersion)
		fmt.Fprintf(tw, "versions to keep:\t%d\n", summary.VersionsToKeep)
		if summary.Locked {
			fmt.Fprintf(tw, "locked by:\t%s since %s\n", summary.LockHolder, formatTime(summary.LockedSince))
		} else {
			fmt.Fprintf(tw, "locked:\tno\n")
		}
		fmt.Fprintf(tw, "last checkin:\t%s at %s\n", summary.LastCheckinUser, formatTime(summary.LastCheckinTime))
		if summary.LatestComment != "" {
			fmt.Fprintf(tw, "comment:\t%s\n", summary.LatestComment)
		}
		if summary.Installed {
			fmt.Fprintf(tw, "installed:\t%s\n", summary.InstallPath)
		}
		return tw.Flush()
	})
}

func newHistoryCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "history <asset>",
		Short: "List retained versions and their comments",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		entries, err := app.query.History(app.path(args[0]))
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return writeJSON(cmd.OutOrStdout(), entries)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTORED\tCOMMENT")
		for _, e := range entries {
			stored := "yes"
			if !e.Present {
				stored = "purged"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Folder, stored, e.Comment)
		}
		return tw.Flush()
	})
}
