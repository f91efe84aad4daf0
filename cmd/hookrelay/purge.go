package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var purgeFlags struct {
	yes bool
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every stored log",
	Long:  `Delete every stored log, including relay request and response snapshots.`,
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().BoolVar(&purgeFlags.yes, "yes", false, "confirm deletion")
}

func runPurge(cmd *cobra.Command, args []string) error {
	if !purgeFlags.yes {
		return fmt.Errorf("refusing to delete all logs without --yes")
	}

	deleted, err := newClient().Purge()
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(struct {
		Deleted int64 `json:"deleted"`
	}{Deleted: deleted}, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
