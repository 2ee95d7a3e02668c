package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/granary-ai/granary/server"
	"github.com/granary-ai/granary/internal/errors"
)

var (
	reprocessFailedOnly bool
	reprocessRebuild    bool

	reprocessCmd = &cobra.Command{
		Use:   "reprocess [id|uid]",
		Short: "Re-drive documents through the ingestion pipeline",
		Long: `Without arguments, reprocess re-drives every pending and failed document.
A document reference limits the run to that document. --rebuild reindexes
the whole corpus from stored content, recovering from a lost or corrupt
index snapshot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reprocessRebuild && (len(args) == 1 || reprocessFailedOnly) {
				return fmt.Errorf("--rebuild runs on the whole corpus and takes no other selection")
			}
			if len(args) == 1 && reprocessFailedOnly {
				return fmt.Errorf("--failed-only cannot be combined with a document reference")
			}

			ctx := cmd.Context()
			srv, err := newReprocessEngine(ctx, reprocessRebuild)
			if err != nil {
				return err
			}
			defer srv.Shutdown(ctx)

			if err := srv.AIConfig.Validate(); err != nil {
				return fmt.Errorf("provider configuration: %w", err)
			}

			switch {
			case len(args) == 1:
				doc, err := srv.Knowledge.Reprocess(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Printf("✓ %s (%d chunks)\n", doc.Filename, doc.ChunkCount)
			case reprocessRebuild:
				rebuilt, failed := srv.Runner.Rebuild(ctx)
				cmd.Printf("index rebuilt: %d documents, %d failed\n", rebuilt, failed)
				if failed > 0 {
					return fmt.Errorf("%d documents failed to reindex", failed)
				}
			default:
				recovered, failed := srv.Runner.RunOnce(ctx, reprocessFailedOnly)
				cmd.Printf("%d recovered, %d failed\n", recovered, failed)
				if failed > 0 {
					return fmt.Errorf("%d documents failed to recover", failed)
				}
			}
			return nil
		},
	}
)

// newReprocessEngine builds the engine like newEngine does, but when a
// rebuild was requested a corrupt snapshot does not abort: the damaged file
// is discarded so the engine comes up with an empty index for Rebuild to
// repopulate.
func newReprocessEngine(ctx context.Context, rebuild bool) (*server.Server, error) {
	p, err := buildProfile()
	if err != nil {
		return nil, err
	}
	setupLogger(p.IsDev())

	srv, err := server.NewServer(ctx, p)
	if rebuild && errors.IsCode(err, errors.ErrCodeIndexCorruption) {
		slog.Warn("discarding corrupt index snapshot", "path", p.IndexSnapshotPath())
		if rmErr := os.Remove(p.IndexSnapshotPath()); rmErr != nil {
			return nil, rmErr
		}
		srv, err = server.NewServer(ctx, p)
	}
	return srv, err
}

func init() {
	reprocessCmd.Flags().BoolVar(&reprocessFailedOnly, "failed-only", false, "only re-drive documents in the FAILED state")
	reprocessCmd.Flags().BoolVar(&reprocessRebuild, "rebuild", false, "reindex every document from stored content")
	rootCmd.AddCommand(reprocessCmd)
}
