package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/granary-ai/granary/server/service/knowledge"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent questions and their answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer srv.Shutdown(ctx)

			records, err := srv.Knowledge.History(ctx, historyLimit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				cmd.Println("No queries yet.")
				return nil
			}

			for _, rec := range records {
				note := fmt.Sprintf("%dms", rec.LatencyMs)
				if rec.CacheHit {
					note = "cached"
				}
				if rec.NoMatch {
					note += ", no match"
				}
				cmd.Printf("%s  %s (%s)\n",
					time.Unix(rec.CreatedTs, 0).Format("2006-01-02 15:04"), rec.Query, note)
				cmd.Printf("    %s\n", knowledge.Preview(rec.Answer, knowledge.PreviewLimit))
			}
			return nil
		},
	}
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "number of records, 0 uses the configured default")
	rootCmd.AddCommand(historyCmd)
}
