package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/granary-ai/granary/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the granary version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.GetCurrentVersion(viper.GetString("mode")))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
