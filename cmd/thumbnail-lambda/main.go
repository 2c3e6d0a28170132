// Package main provides the Lambda entry point for the thumbnail pipeline.
//
// This Lambda is invoked by S3 object-created notifications for the media
// bucket's uploads/ prefix. Each invocation carries a batch of records; the
// dispatcher filters them, resizes each accepted image to a 200px JPEG, and
// writes the thumbnail back under thumbnails/ alongside a status update in
// the images table. Notifications for the thumbnails/ prefix are skipped so
// the pipeline never feeds on its own output.
//
// Memory: 256 MB
// Timeout: 2 minutes
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/photoderive/pipeline/internal/engine"
	"github.com/photoderive/pipeline/internal/lambdaboot"
	"github.com/photoderive/pipeline/internal/logging"
	"github.com/photoderive/pipeline/internal/metrics"
	"github.com/photoderive/pipeline/internal/pipeline"
)

const pipelineName = "thumbnail"

// Initialized at cold start.
var dispatcher *pipeline.Dispatcher

var coldStart = true

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	s3c := lambdaboot.InitS3(aws.Config, "MEDIA_BUCKET_NAME")
	records := lambdaboot.InitRecordStore(aws.Config)

	var auditor pipeline.AuditRecorder
	if a := lambdaboot.InitAudit(aws.Config, "AUDIT_TABLE_NAME"); a != nil {
		auditor = a
	}

	eng := engine.NewResizeEngine(0, 0) // package defaults: 200px, quality 85
	worker := pipeline.NewWorker(s3c.Store, records, eng, 0)
	dispatcher = pipeline.NewDispatcher(pipelineName, worker, auditor)

	lambdaboot.StartupLog("thumbnail-lambda", initStart).
		S3Bucket("mediaBucket", s3c.Bucket).
		Log()
}

func handler(ctx context.Context, event events.S3Event) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "thumbnail-lambda").Msg("Cold start — first invocation")
	}

	result := dispatcher.Dispatch(ctx, notifications(event))

	rec := metrics.NewRecorder(pipelineName)
	rec.Count("BatchReceived", result.Received).
		Count("BatchSkipped", result.Skipped).
		Count("BatchCompleted", result.Completed).
		Count("BatchFailed", result.Failed).
		Property("batchId", result.BatchID)
	for _, o := range result.Outcomes {
		if o.Bytes > 0 {
			rec.Metric("ThumbnailBytes", float64(o.Bytes), metrics.UnitBytes)
		}
	}
	rec.Flush()

	// Entry failures are recorded per image; failing the invocation would
	// only trigger redelivery of already-terminal jobs.
	return nil
}

func notifications(event events.S3Event) []pipeline.Notification {
	batch := make([]pipeline.Notification, 0, len(event.Records))
	for _, r := range event.Records {
		batch = append(batch, pipeline.Notification{
			Bucket: r.S3.Bucket.Name,
			Key:    r.S3.Object.Key,
		})
	}
	return batch
}

func main() {
	lambda.Start(handler)
}
