package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/granary-ai/granary/server/retrieval"
)

var (
	askMaxChunks   int
	askTemperature float64
	askNoCache     bool
	askJSON        bool

	askCmd = &cobra.Command{
		Use:   "ask <question>...",
		Short: "Ask a question grounded in the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer srv.Shutdown(ctx)

			if err := srv.AIConfig.Validate(); err != nil {
				return fmt.Errorf("provider configuration: %w", err)
			}

			question := strings.Join(args, " ")
			result, err := srv.Knowledge.Answer(ctx, question, &retrieval.Options{
				MaxChunks:   askMaxChunks,
				Temperature: askTemperature,
				BypassCache: askNoCache,
			})
			if err != nil {
				return err
			}

			if askJSON {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}

			cmd.Println(result.Answer)
			if len(result.Sources) > 0 {
				cmd.Println("\nSources:")
				for _, src := range result.Sources {
					cmd.Printf("  [%.2f] %s #%d: %s\n",
						src.Similarity, src.DocumentTitle, src.Ordinal, src.Snippet)
				}
			}
			cmd.Printf("\nconfidence %.2f", result.Confidence)
			if result.Cached {
				cmd.Printf(", cached")
			}
			cmd.Println()
			return nil
		},
	}
)

func init() {
	askCmd.Flags().IntVar(&askMaxChunks, "max-chunks", 0, "cap on retrieved chunks, 0 uses the configured default")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 0, "sampling temperature for the answer")
	askCmd.Flags().BoolVar(&askNoCache, "no-cache", false, "skip the answer cache for this question")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(askCmd)
}
