package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/granary-ai/granary/internal/version"
	"github.com/granary-ai/granary/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine with its background loops until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		p, err := buildProfile()
		if err != nil {
			return err
		}
		setupLogger(p.IsDev())

		srv, err := server.NewServer(ctx, p)
		if err != nil {
			return err
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-c
			srv.Shutdown(ctx)
			cancel()
		}()

		cmd.Printf("granary %s running: data %s, driver %s, mode %s\n",
			version.GetCurrentVersion(p.Mode), p.Data, p.Driver, p.Mode)
		cmd.Println("Press Ctrl+C to stop.")
		srv.Start(ctx)

		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
