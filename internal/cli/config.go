package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nainya/assetstore/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.loadConfig(cmd); err != nil {
				return err
			}
			data, err := app.cfg.Render()
			if err != nil {
				return err
			}
			if app.configPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", app.configPath)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the shared settings to the project config file",
		Long: `Write the shared settings to <project-root>/.assetstore.toml. The
workspace root and user are personal and stay out of the project file.
With --output the full resolved configuration is written instead.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.loadConfig(cmd); err != nil {
				return err
			}
			write := app.cfg.WriteFile
			if path == "" {
				path = filepath.Join(app.cfg.ProjectRoot, config.ProjectFileName)
				write = app.cfg.WriteProjectFile
			}
			if err := write(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&path, "output", "o", "", "file to write (default <project-root>/.assetstore.toml)")

	cmd.AddCommand(show, initCmd)
	return cmd
}
