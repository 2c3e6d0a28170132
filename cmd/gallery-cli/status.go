package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/photoderive/pipeline/internal/recordstore"
)

var statusCmd = &cobra.Command{
	Use:   "status <filename>",
	Short: "Show one image's derivation status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := fetchStatus(args[0])
		if err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

func fetchStatus(filename string) (*recordstore.ImageStatus, error) {
	resp, err := http.Get(apiFlag + "/api/images/" + filename + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no image named %s", filename)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed (%d)", resp.StatusCode)
	}

	var status recordstore.ImageStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

func printStatus(s *recordstore.ImageStatus) {
	fmt.Printf("%s\n", s.Filename)
	fmt.Printf("  annotation: %s%s\n", s.AnnotationStatus, statusDetail(s.AnnotationError, s.AnnotationGeneratedAt))
	if s.Annotation != "" {
		fmt.Printf("    %q\n", s.Annotation)
	}
	fmt.Printf("  thumbnail:  %s%s\n", s.ThumbnailStatus, statusDetail(s.ThumbnailError, s.ThumbnailGeneratedAt))
	if s.ThumbnailKey != "" {
		fmt.Printf("    %s (%d bytes)\n", s.ThumbnailKey, s.ThumbnailSize)
	}
}

func statusDetail(errMsg string, at *time.Time) string {
	if errMsg != "" {
		return fmt.Sprintf(" — %s", errMsg)
	}
	if at != nil {
		return fmt.Sprintf(" at %s", at.Local().Format(time.RFC822))
	}
	return ""
}
