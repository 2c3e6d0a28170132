package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/evanoberholster/imagemeta"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/photoderive/pipeline/internal/pipeline"
	"github.com/photoderive/pipeline/internal/recordstore"
)

// allowedTypes maps accepted upload extensions to their MIME types.
var allowedTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// --- Upload + Listing ---

func handleImages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		handleUpload(w, r)
	case http.MethodGet:
		handleList(w, r)
	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUpload stores the original under uploads/ and inserts the metadata
// row with both derivations pending. The S3 write is what triggers the
// processing pipelines; this handler never waits for them.
func handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	mimeType, ok := allowedTypes[ext]
	if !ok {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", ext))
		return
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		httpError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	data := buf.Bytes()

	filename := uuid.NewString() + ext
	key := pipeline.UploadPrefix + filename

	rec := &recordstore.ImageRecord{
		Filename:         filename,
		OriginalFilename: header.Filename,
		FileSize:         int64(len(data)),
		MimeType:         mimeType,
		S3Key:            key,
		S3Bucket:         blobs.Bucket,
		UploadIP:         clientIP(r),
	}

	// Dimensions and EXIF are best effort; a photo without readable
	// metadata still uploads.
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		rec.ImageWidth = cfg.Width
		rec.ImageHeight = cfg.Height
		rec.ImageFormat = format
	}
	if exif, err := imagemeta.Decode(bytes.NewReader(data)); err == nil {
		rec.CameraMake = strings.TrimSpace(exif.Make)
		rec.CameraModel = strings.TrimSpace(exif.Model)
		switch {
		case !exif.DateTimeOriginal().IsZero():
			rec.TakenAt = exif.DateTimeOriginal()
		case !exif.CreateDate().IsZero():
			rec.TakenAt = exif.CreateDate()
		}
	}

	// Row first, object second: the pipelines' status updates assume the
	// row exists by the time the S3 notification fires.
	if err := records.InsertImage(r.Context(), rec); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to insert image record")
		httpError(w, http.StatusInternalServerError, "failed to record upload")
		return
	}

	metadata := map[string]string{
		"original-filename": header.Filename,
		"uploaded-at":       time.Now().UTC().Format(time.RFC3339),
	}
	if err := blobs.Store.Put(r.Context(), key, data, mimeType, metadata); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to store upload")
		httpError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	log.Info().
		Str("filename", filename).
		Str("originalFilename", header.Filename).
		Int("bytes", len(data)).
		Msg("Image uploaded")

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"filename":          filename,
		"original_filename": header.Filename,
		"size":              len(data),
		"status_url":        "/api/images/" + filename + "/status",
	})
}

// listEntry augments an ImageSummary with presigned media URLs.
type listEntry struct {
	recordstore.ImageSummary
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := records.ListImages(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list images")
		httpError(w, http.StatusInternalServerError, "failed to list images")
		return
	}

	entries := make([]listEntry, 0, len(summaries))
	for _, s := range summaries {
		e := listEntry{ImageSummary: s}
		e.URL = presignGet(r, pipeline.UploadPrefix+s.Filename)
		if s.ThumbnailStatus == recordstore.StatusCompleted {
			e.ThumbnailURL = presignGet(r, pipeline.DerivedKey(s.Filename))
		}
		entries = append(entries, e)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"images": entries,
		"count":  len(entries),
	})
}

// presignGet returns a presigned GET URL, or "" when presigning fails.
// Listing proceeds without the URL rather than failing the page.
func presignGet(r *http.Request, key string) string {
	result, err := presigner.PresignGetObject(r.Context(), &s3.GetObjectInput{
		Bucket: &blobs.Bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to presign URL")
		return ""
	}
	return result.URL
}

// --- Status Poll ---

// handleImageStatus serves GET /api/images/{filename}/status.
func handleImageStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/images/")
	filename, ok := strings.CutSuffix(rest, "/status")
	if !ok || filename == "" || strings.Contains(filename, "/") {
		httpError(w, http.StatusNotFound, "not found")
		return
	}

	status, err := records.GetStatus(r.Context(), filename)
	if err != nil {
		if errors.Is(err, recordstore.ErrRecordNotFound) {
			httpError(w, http.StatusNotFound, "image not found")
			return
		}
		log.Error().Err(err).Str("filename", filename).Msg("Failed to read status")
		httpError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// --- Stats ---

func handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := records.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read stats")
		httpError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// --- Export ---

// handleExport streams a ZIP of every original, compressed with zstd. Entries
// use the original filename when it is unique, falling back to the assigned
// one on collision.
func handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summaries, err := records.ListImages(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list images for export")
		httpError(w, http.StatusInternalServerError, "failed to list images")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="gallery-export.zip"`)
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	defer zw.Close()

	seen := make(map[string]bool, len(summaries))
	exported := 0
	for _, s := range summaries {
		data, err := blobs.Store.Get(r.Context(), pipeline.UploadPrefix+s.Filename)
		if err != nil {
			// Skip unreadable originals; a partial archive beats none.
			log.Warn().Err(err).Str("filename", s.Filename).Msg("Skipping image in export")
			continue
		}

		name := s.OriginalFilename
		if name == "" || seen[name] {
			name = s.Filename
		}
		seen[name] = true

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zipMethodZstd,
			Modified: s.UploadedAt,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create archive entry")
			return
		}
		if _, err := entry.Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write archive entry")
			return
		}
		exported++
	}

	log.Info().Int("exported", exported).Int("total", len(summaries)).Msg("Gallery export complete")
}
