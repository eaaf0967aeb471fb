package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/babelcloud/voicepilot/config"
	model "github.com/babelcloud/voicepilot/pkg/agent"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (credentials shown only as SET/NOT SET)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(cmd, config.GetInstance())
		},
	})
	return cmd
}

func printConfig(cmd *cobra.Command, cfg *config.Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(b))

	keys := cfg.KeyStatus()
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "credentials:")
	for _, name := range names {
		status := model.KeyNotSet
		if keys[name] {
			status = model.KeySet
		}
		fmt.Fprintf(out, "  %s: %s\n", name, status)
	}
	return nil
}
