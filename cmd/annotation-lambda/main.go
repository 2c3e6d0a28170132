// Package main provides the Lambda entry point for the annotation pipeline.
//
// This Lambda is invoked by S3 object-created notifications for the media
// bucket's uploads/ prefix. Each invocation carries a batch of records; the
// dispatcher filters them, generates an AI description per accepted image,
// and writes the annotation status to the images table.
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

const pipelineName = "annotation"

// Initialized at cold start.
var dispatcher *pipeline.Dispatcher

var coldStart = true

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	s3c := lambdaboot.InitS3(aws.Config, "MEDIA_BUCKET_NAME")
	records := lambdaboot.InitRecordStore(aws.Config)

	// Keep a disabled audit store out of the interface so the dispatcher's
	// nil check works.
	var auditor pipeline.AuditRecorder
	if a := lambdaboot.InitAudit(aws.Config, "AUDIT_TABLE_NAME"); a != nil {
		auditor = a
	}

	apiKey := lambdaboot.LoadGeminiKey(aws.SSM)
	client, err := engine.NewGeminiClient(context.Background(), apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	eng := engine.NewCaptionEngine(client, engine.ModelName())

	worker := pipeline.NewWorker(s3c.Store, records, eng, 0)
	dispatcher = pipeline.NewDispatcher(pipelineName, worker, auditor)

	lambdaboot.StartupLog("annotation-lambda", initStart).
		S3Bucket("mediaBucket", s3c.Bucket).
		Config("model", engine.ModelName()).
		Log()
}

func handler(ctx context.Context, event events.S3Event) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "annotation-lambda").Msg("Cold start — first invocation")
	}

	result := dispatcher.Dispatch(ctx, notifications(event))

	rec := metrics.NewRecorder(pipelineName)
	rec.Count("BatchReceived", result.Received).
		Count("BatchSkipped", result.Skipped).
		Count("BatchCompleted", result.Completed).
		Count("BatchFailed", result.Failed).
		Property("batchId", result.BatchID)
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
