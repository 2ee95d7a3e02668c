package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	ingestTitle string

	ingestCmd = &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest files or directories into the corpus",
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

			if ingestTitle != "" {
				if len(args) != 1 {
					return fmt.Errorf("--title takes exactly one file")
				}
				if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
					return fmt.Errorf("--title cannot be used with a directory")
				}
				doc, err := srv.Knowledge.IngestFile(ctx, args[0], ingestTitle)
				if err != nil {
					return err
				}
				cmd.Printf("✓ %s (%s, %d chunks)\n", doc.Filename, doc.UID, doc.ChunkCount)
				return nil
			}

			results, err := srv.Knowledge.IngestPaths(ctx, args)
			if err != nil {
				return err
			}

			failed := 0
			for _, result := range results {
				if result.Err != nil {
					failed++
					cmd.Printf("✗ %s: %v\n", result.Filename, result.Err)
					continue
				}
				cmd.Printf("✓ %s (%s, %d chunks)\n",
					result.Document.Filename, result.Document.UID, result.Document.ChunkCount)
			}
			cmd.Printf("\n%d ingested, %d failed\n", len(results)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
)

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "title for the document, only valid with a single file")
	rootCmd.AddCommand(ingestCmd)
}
