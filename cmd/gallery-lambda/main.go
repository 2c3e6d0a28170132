// Package main provides the gallery API Lambda.
//
// Routes (behind an API Gateway HTTP API):
//
//	POST /api/images               — multipart upload; inserts the metadata row
//	GET  /api/images               — gallery listing with presigned URLs
//	GET  /api/images/{id}/status   — derivation status poll
//	GET  /api/stats                — aggregate derivation stats
//	GET  /api/export               — zstd-compressed ZIP of all originals
//	GET  /health                   — health check
//
// Uploads land under uploads/ in the media bucket, which triggers the
// annotation and thumbnail pipelines through S3 notifications. The gallery
// itself never processes images; it only inserts the pending row and serves
// what the pipelines produce.
package main

import (
	"archive/zip"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/klauspost/compress/zstd"

	"github.com/photoderive/pipeline/internal/lambdaboot"
	"github.com/photoderive/pipeline/internal/logging"
	"github.com/photoderive/pipeline/internal/recordstore"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE
// 6.3.7). Registered in init() with zstd level 12.
const zipMethodZstd uint16 = 93

// maxUploadBytes caps one upload at 16 MB, matching the bucket's notification
// sizing and the pipelines' memory budget.
const maxUploadBytes = 16 << 20

// presignExpiry bounds gallery media URLs.
const presignExpiry = 15 * time.Minute

// Initialized at cold start.
var (
	blobs     lambdaboot.S3Clients
	records   recordstore.Store
	presigner *s3.PresignClient
)

// bootstrap runs once at cold start, from main rather than init so the
// handlers stay testable with stubbed stores.
func bootstrap() {
	initStart := time.Now()
	logging.Init()

	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})

	aws := lambdaboot.InitAWS()
	blobs = lambdaboot.InitS3(aws.Config, "MEDIA_BUCKET_NAME")
	records = lambdaboot.InitRecordStore(aws.Config)
	presigner = blobs.Presigner

	lambdaboot.StartupLog("gallery-lambda", initStart).
		S3Bucket("mediaBucket", blobs.Bucket).
		Log()
}

func main() {
	bootstrap()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/api/images", handleImages)
	mux.HandleFunc("/api/images/", handleImageStatus)
	mux.HandleFunc("/api/stats", handleStats)
	mux.HandleFunc("/api/export", handleExport)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
