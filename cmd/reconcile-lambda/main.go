// Package main provides the reconciliation Lambda.
//
// A job can be stranded in processing forever when its worker is torn down
// between the processing write and the terminal write. Nothing redelivers
// the notification in that case, so a scheduled sweep finds rows stuck in
// processing past the staleness threshold and re-drives them by invoking the
// owning pipeline Lambda with a synthesized object-created event. The re-run
// is safe: workers re-enter processing unconditionally and converge to the
// same terminal state.
//
// Trigger: EventBridge schedule, every 15 minutes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"

	"github.com/photoderive/pipeline/internal/lambdaboot"
	"github.com/photoderive/pipeline/internal/logging"
	"github.com/photoderive/pipeline/internal/metrics"
	"github.com/photoderive/pipeline/internal/recordstore"
)

// staleThreshold is how long a job may sit in processing before the sweep
// re-drives it. Well past the 30s engine timeout plus Lambda overhead, so a
// healthy slow job is never re-driven.
const staleThreshold = 15 * time.Minute

// Initialized at cold start.
var (
	records      recordstore.Store
	lambdaClient *lambdasvc.Client
	pipelineArns map[recordstore.Kind]string
)

func init() {
	initStart := time.Now()
	logging.Init()

	boot := lambdaboot.InitAWS()
	records = lambdaboot.InitRecordStore(boot.Config)
	lambdaClient = lambdasvc.NewFromConfig(boot.Config)

	pipelineArns = map[recordstore.Kind]string{
		recordstore.KindAnnotation: logging.EnvOrDefault("ANNOTATION_LAMBDA_ARN", ""),
		recordstore.KindThumbnail:  logging.EnvOrDefault("THUMBNAIL_LAMBDA_ARN", ""),
	}
	if pipelineArns[recordstore.KindAnnotation] == "" || pipelineArns[recordstore.KindThumbnail] == "" {
		log.Fatal().Msg("ANNOTATION_LAMBDA_ARN and THUMBNAIL_LAMBDA_ARN are required")
	}

	lambdaboot.StartupLog("reconcile-lambda", initStart).
		LambdaFunc("annotationLambda", pipelineArns[recordstore.KindAnnotation]).
		LambdaFunc("thumbnailLambda", pipelineArns[recordstore.KindThumbnail]).
		Config("staleThreshold", staleThreshold.String()).
		Log()
}

func handler(ctx context.Context) error {
	start := time.Now()

	stale, err := records.ListStaleProcessing(ctx, staleThreshold)
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}

	log.Info().Int("staleJobs", len(stale)).Msg("Reconciliation sweep started")

	redriven := 0
	for _, job := range stale {
		if err := redrive(ctx, job); err != nil {
			// One failed re-drive shouldn't stop the sweep; the next
			// run picks the job up again.
			log.Error().Err(err).
				Str("filename", job.Filename).
				Str("kind", string(job.Kind)).
				Msg("Failed to re-drive stale job")
			continue
		}
		redriven++
	}

	rec := metrics.NewRecorder("reconcile")
	rec.Count("StaleJobs", len(stale)).
		Count("Redriven", redriven).
		Duration("SweepLatency", time.Since(start))
	rec.Flush()

	log.Info().
		Int("staleJobs", len(stale)).
		Int("redriven", redriven).
		Dur("duration", time.Since(start)).
		Msg("Reconciliation sweep complete")
	return nil
}

// redrive invokes the pipeline Lambda owning the job's kind with a
// synthesized object-created event for the original upload key.
// InvocationType=Event: the sweep doesn't wait for the re-run.
func redrive(ctx context.Context, job recordstore.StaleJob) error {
	arn := pipelineArns[job.Kind]
	if arn == "" {
		return fmt.Errorf("no pipeline configured for kind %s", job.Kind)
	}

	event := events.S3Event{
		Records: []events.S3EventRecord{{
			EventSource: "photoderive:reconcile",
			EventName:   "ObjectCreated:Put",
			EventTime:   time.Now().UTC(),
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: job.S3Bucket},
				Object: events.S3Object{Key: job.S3Key},
			},
		}},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal redrive event: %w", err)
	}

	_, err = lambdaClient.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(arn),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke %s pipeline: %w", job.Kind, err)
	}

	log.Info().
		Str("filename", job.Filename).
		Str("kind", string(job.Kind)).
		Str("key", job.S3Key).
		Msg("Stale job re-driven")
	return nil
}

func main() {
	lambda.Start(handler)
}
