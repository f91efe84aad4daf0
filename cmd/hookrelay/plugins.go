package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the capture pipeline plugins",
	RunE:  runPlugins,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

func runPlugins(cmd *cobra.Command, args []string) error {
	resp, err := newClient().Plugins()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-16s  %-8s  %-7s  %s\n", "ID", "TYPE", "ENABLED", "CONFIG")
	for _, p := range resp.Plugins {
		cfg := "-"
		if len(p.Config) > 0 {
			b, _ := json.Marshal(p.Config)
			cfg = string(b)
		}
		fmt.Fprintf(out, "%-16s  %-8s  %-7t  %s\n", p.ID, p.Type, p.Enabled, cfg)
	}
	return nil
}
