package main

import (
	"fmt"
	"log"
	"os"

	"teamup/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:   "teamup",
	Short: "TeamUp marketplace server",
	Long: `TeamUp keeps projects, applications, wishlists and their per-user
mirrors consistent, closes projects past their deadline, and streams live
changes to clients.

Commands:
  serve       Run the HTTP API, change feed and background jobs (default)
  sweep       Close expired projects once and exit
  reconcile   Repair application mirrors once and exit`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file (ignore error if file doesn't exist)
		if err := godotenv.Load(); err != nil {
			log.Printf("⚠️  No .env file found or error loading it: %v", err)
		}
		logging.Init()
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd, reconcileCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
