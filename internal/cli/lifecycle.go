package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegisterCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "register <parent-dir> <name>",
		Short: "Register a new versioned asset",
		Args:  cobra.ExactArgs(2),
	}, func(cmd *cobra.Command, args []string) error {
		path, err := app.engine.Register(app.ctx(cmd), app.identity, app.path(args[0]), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", path)
		return nil
	})
}

func newScaffoldCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "scaffold <parent-dir> <name>",
		Short: "Create a folder holding a versioned model asset",
		Args:  cobra.ExactArgs(2),
	}, func(cmd *cobra.Command, args []string) error {
		path, err := app.engine.Scaffold(app.ctx(cmd), app.identity, app.path(args[0]), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", path)
		return nil
	})
}

func newCheckoutCmd(app *App) *cobra.Command {
	var exclusive bool
	cmd := engineCmd(app, &cobra.Command{
		Use:   "checkout <asset>",
		Short: "Copy the latest version into the workspace",
		Long: `Copy the latest version of an asset into the workspace.
With --exclusive the asset is locked until the working copy is checked in
or discarded. Without it the copy is read-only from the store's point of view.`,
		Args: cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		dest, err := app.engine.Checkout(app.ctx(cmd), app.identity, app.path(args[0]), exclusive)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dest)
		return nil
	})
	cmd.Flags().BoolVarP(&exclusive, "exclusive", "x", false, "lock the asset for editing")
	return cmd
}

func newCheckinCmd(app *App) *cobra.Command {
	var message string
	cmd := engineCmd(app, &cobra.Command{
		Use:   "checkin <working-copy>",
		Short: "Store a locked working copy as the next version",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		wc := app.workingCopy(args[0])
		if cmd.Flags().Changed("message") {
			if err := app.engine.SetComment(app.ctx(cmd), app.identity, wc, message); err != nil {
				return err
			}
		}
		asset, err := app.engine.Checkin(app.ctx(cmd), app.identity, wc)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked in %s as version %d\n", asset, app.query.LatestVersion(asset))
		return nil
	})
	cmd.Flags().StringVarP(&message, "message", "m", "", "comment for the new version")
	return cmd
}

func newCommentCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "comment <working-copy> <text>",
		Short: "Set the comment of the version a checkin will create",
		Args:  cobra.ExactArgs(2),
	}, func(cmd *cobra.Command, args []string) error {
		return app.engine.SetComment(app.ctx(cmd), app.identity, app.workingCopy(args[0]), args[1])
	})
}

func newDiscardCmd(app *App) *cobra.Command {
	return engineCmd(app, &cobra.Command{
		Use:   "discard <working-copy>",
		Short: "Delete a working copy, releasing its lock",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string) error {
		return app.engine.Discard(app.ctx(cmd), app.identity, app.workingCopy(args[0]))
	})
}
