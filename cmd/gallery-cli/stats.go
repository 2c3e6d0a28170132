package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/photoderive/pipeline/internal/recordstore"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate gallery statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(apiFlag + "/api/stats")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("stats request failed (%d)", resp.StatusCode)
		}

		var stats recordstore.GalleryStats
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return fmt.Errorf("decode stats: %w", err)
		}

		fmt.Printf("Images:            %d\n", stats.TotalImages)
		fmt.Printf("Annotations done:  %d\n", stats.CompletedAnnotations)
		fmt.Printf("Thumbnails done:   %d\n", stats.CompletedThumbnails)
		fmt.Printf("Failed jobs:       %d\n", stats.FailedProcessing)
		fmt.Printf("Avg file size:     %.0f bytes\n", stats.AvgFileSize)
		fmt.Printf("Total storage:     %d bytes\n", stats.TotalStorageUsed)
		return nil
	},
}
