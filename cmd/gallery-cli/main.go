// Package main provides gallery-cli, an operator tool for the photo
// derivation pipeline.
//
// Subcommands:
//
//	upload  — push images to the gallery API (file picker when no args)
//	status  — poll one image's derivation status
//	stats   — aggregate gallery statistics
//	logs    — tail recent CloudWatch logs for a pipeline Lambda
//	db      — inspect, start, or stop the Aurora images cluster
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/photoderive/pipeline/internal/logging"
)

// apiFlag is the gallery API base URL, shared by the HTTP subcommands.
var apiFlag string

var rootCmd = &cobra.Command{
	Use:   "gallery-cli",
	Short: "Operator CLI for the photo derivation pipeline",
	Long: `gallery-cli uploads images, checks derivation progress, and manages the
pipeline's supporting infrastructure.

Examples:
  gallery-cli upload photo1.jpg photo2.jpg
  gallery-cli upload --wait            # file picker, then poll until done
  gallery-cli status 5e8a...c1.jpg
  gallery-cli stats
  gallery-cli logs --function thumbnail-lambda --since 30m
  gallery-cli db status`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func init() {
	defaultAPI := os.Getenv("GALLERY_API_URL")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", defaultAPI, "Gallery API base URL (env: GALLERY_API_URL)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(dbCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
