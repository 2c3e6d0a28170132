// Package audit records per-batch processing summaries in DynamoDB.
//
// The batch dispatcher always reports success to its invoker, so entry-level
// failures are otherwise visible only through individual status records. The
// audit trail makes batch outcomes observable for troubleshooting without
// changing the batch's completion signal. Records expire via TTL after 24
// hours.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// RecordTTL is how long batch audit records are retained.
const RecordTTL = 24 * time.Hour

const pkPrefix = "BATCH#"

// BatchSummary describes one batch invocation.
type BatchSummary struct {
	BatchID    string   `dynamodbav:"-"`
	Pipeline   string   `dynamodbav:"pipeline"`
	Received   int      `dynamodbav:"received"`
	Skipped    int      `dynamodbav:"skipped"`
	Completed  int      `dynamodbav:"completed"`
	Failed     int      `dynamodbav:"failed"`
	FailedKeys []string `dynamodbav:"failedKeys,omitempty"`
	DurationMs int64    `dynamodbav:"durationMs"`
	StartedAt  string   `dynamodbav:"startedAt"`
}

// Store persists batch summaries to a DynamoDB table.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// NewStore creates a Store for the given table.
func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// RecordBatch writes one summary item keyed by BATCH#{batchId}.
func (s *Store) RecordBatch(ctx context.Context, sum *BatchSummary) error {
	item, err := attributevalue.MarshalMap(sum)
	if err != nil {
		return fmt.Errorf("marshal batch summary: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pkPrefix + sum.BatchID}
	item["SK"] = &types.AttributeValueMemberS{Value: sum.Pipeline}
	item["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Add(RecordTTL).Unix(), 10),
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem batch %s: %w", sum.BatchID, err)
	}

	log.Debug().
		Str("batchId", sum.BatchID).
		Str("pipeline", sum.Pipeline).
		Int("completed", sum.Completed).
		Int("failed", sum.Failed).
		Msg("Batch summary persisted")
	return nil
}
