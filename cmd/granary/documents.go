package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/granary-ai/granary/server/service/knowledge"
)

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Manage corpus documents",
}

var (
	documentsListFilter string

	documentsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer srv.Shutdown(ctx)

			docs, err := srv.Knowledge.ListDocuments(ctx, documentsListFilter)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				cmd.Println("No documents.")
				return nil
			}

			cmd.Printf("%-5s %-14s %-10s %6s %9s  %s\n", "ID", "UID", "STATUS", "CHUNKS", "SIZE", "TITLE")
			for _, doc := range docs {
				cmd.Printf("%-5d %-14s %-10s %6d %9d  %s\n",
					doc.ID, doc.UID, doc.Status, doc.ChunkCount, doc.SizeBytes,
					knowledge.Preview(doc.Title, 48))
			}
			cmd.Printf("\n%d documents\n", len(docs))
			return nil
		},
	}

	documentsShowCmd = &cobra.Command{
		Use:   "show <id|uid>",
		Short: "Show one document in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer srv.Shutdown(ctx)

			doc, err := srv.Knowledge.GetDocument(ctx, args[0])
			if err != nil {
				return err
			}

			cmd.Printf("ID:        %d\n", doc.ID)
			cmd.Printf("UID:       %s\n", doc.UID)
			cmd.Printf("Title:     %s\n", doc.Title)
			cmd.Printf("Filename:  %s\n", doc.Filename)
			cmd.Printf("Type:      %s\n", doc.ContentType)
			cmd.Printf("Status:    %s\n", doc.Status)
			if doc.FailureReason != "" {
				cmd.Printf("Failure:   %s\n", doc.FailureReason)
			}
			cmd.Printf("Size:      %d bytes, %d words\n", doc.SizeBytes, doc.WordCount)
			cmd.Printf("Chunks:    %d\n", doc.ChunkCount)
			cmd.Printf("Created:   %s\n", time.Unix(doc.CreatedTs, 0).Format("2006-01-02 15:04:05"))
			cmd.Printf("Updated:   %s\n", time.Unix(doc.UpdatedTs, 0).Format("2006-01-02 15:04:05"))
			if doc.Content != "" {
				cmd.Printf("\n%s\n", knowledge.Preview(doc.Content, 400))
			}
			return nil
		},
	}

	documentsDeleteCmd = &cobra.Command{
		Use:   "delete <id|uid>",
		Short: "Delete a document with its chunks, vectors and cached answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer srv.Shutdown(ctx)

			if err := srv.Knowledge.DeleteDocument(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("✓ deleted %s\n", args[0])
			return nil
		},
	}
)

func init() {
	documentsListCmd.Flags().StringVar(&documentsListFilter, "filter", "",
		`CEL filter over {uid, title, filename, mime, status}, e.g. 'status == "failed"'`)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsShowCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	rootCmd.AddCommand(documentsCmd)
}
