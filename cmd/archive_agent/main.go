// Package main provides the entry point for the story archiver CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "archive_agent",
	Short: "Story archive maintenance tool",
	Long:  "Story archiver keeps a versioned zip archive of stories in sync with the remote site, one incremental update run at a time.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
