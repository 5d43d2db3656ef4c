package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the vibemusic command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vibemusic",
		Short:         "Vibe Music server",
		Long:          "Music sharing platform with a moderated catalog and a requirement forum.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	return cmd
}

// Execute runs the root command; with no subcommand it serves.
func Execute() {
	root := NewRootCommand()
	if len(os.Args) == 1 {
		root.SetArgs([]string{"serve"})
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
