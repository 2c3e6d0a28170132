// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the project needs some subset of: AWS config, the media
// bucket, the images metadata store, the batch audit table, an SSM secret
// fetch, and startup logging. This package extracts the common init patterns
// so each Lambda's init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/photoderive/pipeline/internal/audit"
	"github.com/photoderive/pipeline/internal/blobstore"
	"github.com/photoderive/pipeline/internal/logging"
	"github.com/photoderive/pipeline/internal/recordstore"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds the media blob store plus the raw client and presigner for
// callers that serve gallery URLs.
type S3Clients struct {
	Store     *blobstore.Store
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// InitAWS loads the default AWS config. Fatals on error: a Lambda without
// credentials cannot do anything useful.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates the media blob store from the bucket named by bucketEnvVar.
// Fatals if the env var is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	client := s3.NewFromConfig(cfg)
	return S3Clients{
		Store:     blobstore.New(client, bucket),
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// InitRecordStore creates the images metadata store backed by the RDS Data
// API. Cluster, secret, and database come from IMAGES_CLUSTER_ARN,
// IMAGES_SECRET_ARN, and IMAGES_DATABASE. Fatals if any is missing.
func InitRecordStore(cfg aws.Config) *recordstore.DataAPIStore {
	clusterARN := os.Getenv("IMAGES_CLUSTER_ARN")
	secretARN := os.Getenv("IMAGES_SECRET_ARN")
	database := os.Getenv("IMAGES_DATABASE")
	if clusterARN == "" || secretARN == "" || database == "" {
		log.Fatal().
			Bool("clusterArnSet", clusterARN != "").
			Bool("secretArnSet", secretARN != "").
			Bool("databaseSet", database != "").
			Msg("IMAGES_CLUSTER_ARN, IMAGES_SECRET_ARN, and IMAGES_DATABASE are required")
	}
	return recordstore.NewDataAPIStore(rdsdata.NewFromConfig(cfg), clusterARN, secretARN, database)
}

// InitAudit creates the batch audit store if tableEnvVar is set. Returns nil
// (with a warning) when not configured; auditing is optional.
func InitAudit(cfg aws.Config, tableEnvVar string) *audit.Store {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Warn().Str("envVar", tableEnvVar).Msg("Audit table not set — batch auditing disabled")
		return nil
	}
	return audit.NewStore(dynamodb.NewFromConfig(cfg), tableName)
}

// LoadGeminiKey fetches the Gemini API key from SSM Parameter Store if not
// already set via GEMINI_API_KEY. Fatals on error.
func LoadGeminiKey(ssmClient *ssm.Client) string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	paramName := os.Getenv("SSM_API_KEY_PARAM")
	if paramName == "" {
		paramName = "/photo-derive/prod/gemini-api-key"
	}
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read API key from SSM")
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return *result.Parameter.Value
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
