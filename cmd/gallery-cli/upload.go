package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/zenity"
	"github.com/spf13/cobra"

	"github.com/photoderive/pipeline/internal/recordstore"
)

var (
	waitFlag        bool
	waitTimeoutFlag time.Duration
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Upload images to the gallery",
	Long: `Upload one or more images to the gallery API. With no arguments, a native
file picker opens for selection. With --wait, the command polls each image's
derivation status until both the annotation and the thumbnail reach a
terminal state.`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&waitFlag, "wait", false, "Poll derivation status until terminal")
	uploadCmd.Flags().DurationVar(&waitTimeoutFlag, "wait-timeout", 2*time.Minute, "Give up polling after this long per image")
}

func runUpload(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		selected, err := zenity.SelectFileMultiple(
			zenity.Title("Select images to upload"),
			zenity.FileFilters{
				{Name: "Images", Patterns: []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp"}, CaseFold: true},
			},
		)
		if err != nil {
			if errors.Is(err, zenity.ErrCanceled) {
				fmt.Println("Canceled.")
				return nil
			}
			return fmt.Errorf("file picker: %w", err)
		}
		paths = selected
	}

	var uploaded []string
	for _, p := range paths {
		filename, err := uploadOne(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", filepath.Base(p), err)
			continue
		}
		fmt.Printf("✓ %s → %s\n", filepath.Base(p), filename)
		uploaded = append(uploaded, filename)
	}

	if !waitFlag {
		return nil
	}
	for _, filename := range uploaded {
		if err := waitForImage(filename); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", filename, err)
		}
	}
	return nil
}

// uploadOne POSTs a single file as multipart form data and returns the
// assigned filename.
func uploadOne(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := http.Post(apiFlag+"/api/images", mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload rejected (%d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return result.Filename, nil
}

// waitForImage polls the status endpoint until both derivations are
// terminal or the wait times out.
func waitForImage(filename string) error {
	deadline := time.Now().Add(waitTimeoutFlag)
	for {
		status, err := fetchStatus(filename)
		if err != nil {
			return err
		}
		if terminal(status.AnnotationStatus) && terminal(status.ThumbnailStatus) {
			printStatus(status)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("still %s/%s after %s", status.AnnotationStatus, status.ThumbnailStatus, waitTimeoutFlag)
		}
		time.Sleep(2 * time.Second)
	}
}

func terminal(status string) bool {
	return status == recordstore.StatusCompleted || status == recordstore.StatusFailed
}
