package main

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		srv, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer srv.Shutdown(ctx)

		cmd.Println(srv.Knowledge.Stats(ctx).GetSummary())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
