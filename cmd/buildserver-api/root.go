package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "buildserver-api",
	Short: "Build server api, schema migrations and rebuilder",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rebuilderCmd)
}
