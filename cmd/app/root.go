package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	serve := newServeCommand()
	root := &cobra.Command{
		Use:   "voicepilot",
		Short: "Voice-driven browser automation server",
		Long: "voicepilot turns spoken commands into browser actions. Run without a\n" +
			"subcommand to start the API server.",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	cobra.EnableCommandSorting = false
	root.AddCommand(serve)
	root.AddCommand(newSessionCommand())
	root.AddCommand(newConfigCommand())
	root.AddCommand(newVersionCommand())
	return root
}
