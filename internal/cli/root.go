// Package cli implements the assetstore command line
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree with fresh state
func NewRootCmd() *cobra.Command {
	app := &App{}

	root := &cobra.Command{
		Use:   "assetstore",
		Short: "Versioned asset store with exclusive checkout",
		Long: `assetstore keeps numbered versions of asset directories inside a project
tree. Users check an asset out into their workspace, edit it there and check
it in as the next version. An exclusive checkout locks the asset until the
working copy is checked in or discarded.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&app.configFile, "config", "c", "", "config file (default <project-root>/.assetstore.toml)")
	flags.StringVarP(&app.projectRoot, "project-root", "p", ".", "project root holding the assets")
	flags.StringVarP(&app.workspaceRoot, "workspace", "w", "", "directory receiving working copies")
	flags.StringVarP(&app.userName, "user", "u", "", "act as this login (default: current user)")
	flags.IntVar(&app.keep, "keep", 5, "versions to keep for newly registered assets (0 keeps all)")
	flags.BoolVar(&app.noLock, "no-lock", false, "disable the cross-process asset lock")
	flags.BoolVar(&app.noJournal, "no-journal", false, "disable the operation journal")
	flags.StringVar(&app.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&app.jsonOutput, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newRegisterCmd(app),
		newScaffoldCmd(app),
		newCheckoutCmd(app),
		newCheckinCmd(app),
		newCommentCmd(app),
		newDiscardCmd(app),
		newUnlockCmd(app),
		newRollbackCmd(app),
		newSetVersionCmd(app),
		newPurgeCmd(app),
		newStatusCmd(app),
		newHistoryCmd(app),
		newRecoverCmd(app),
		newNextFolderCmd(app),
		newConfigCmd(app),
	)
	return root
}

// Execute runs the command line with ctx
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// engineCmd wraps a command that needs the versioning engine
func engineCmd(app *App, cmd *cobra.Command, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		if err := app.setup(cmd); err != nil {
			return err
		}
		defer func() {
			if cerr := app.teardown(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
	return cmd
}
