package main

import (
	"fmt"

	"github.com/spf13/cobra"

	miscService "github.com/babelcloud/voicepilot/internal/misc/service"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := miscService.New(miscService.Runtime{}).GetVersion()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:    %s\n", v.Version)
			fmt.Fprintf(out, "API:        %s\n", v.APIVersion)
			fmt.Fprintf(out, "Go version: %s\n", v.GoVersion)
			fmt.Fprintf(out, "Git commit: %s\n", v.GitCommit)
			fmt.Fprintf(out, "Built:      %s\n", v.FormattedTime)
			fmt.Fprintf(out, "OS/Arch:    %s/%s\n", v.OS, v.Arch)
		},
	}
}
