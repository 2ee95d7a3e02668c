// Package main is the granary command line interface: a retrieval engine
// that ingests documents, indexes them as vector embeddings and answers
// questions grounded in their content.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/granary-ai/granary/internal/profile"
	"github.com/granary-ai/granary/server"
)

var rootCmd = &cobra.Command{
	Use:   "granary",
	Short: "A grounded retrieval engine for your documents",
	Long: `Granary ingests documents, chunks and embeds them into a vector index,
and answers questions grounded in the retrieved content. Configuration
comes from flags and GRANARY_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("granary")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the engine, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("data", "", "directory for the database and the index snapshot")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")

	for _, flag := range []string{"mode", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// buildProfile assembles the runtime profile from the environment and the
// persistent flags, flags taking precedence.
func buildProfile() (*profile.Profile, error) {
	p := profile.FromEnv()
	p.Mode = viper.GetString("mode")
	p.Data = viper.GetString("data")
	p.Driver = viper.GetString("driver")
	p.DSN = viper.GetString("dsn")

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func setupLogger(dev bool) {
	level := slog.LevelInfo
	if dev {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newEngine builds the full engine stack for a one-shot command.
func newEngine(ctx context.Context) (*server.Server, error) {
	p, err := buildProfile()
	if err != nil {
		return nil, err
	}
	setupLogger(p.IsDev())
	return server.NewServer(ctx, p)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
