// Package blobstore wraps S3 object access for the derivation pipelines.
//
// The pipelines only need get-by-key and put-by-key; presigned-URL issuance
// for viewers lives with the gallery API. Failures map onto a closed set:
// ErrNotFound for missing objects, ErrUnavailable for everything else. No
// retries happen here — redelivery of the triggering notification is the
// retry path.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound indicates the requested key does not exist in the bucket.
	ErrNotFound = errors.New("object not found")

	// ErrUnavailable indicates the store rejected or failed the call.
	ErrUnavailable = errors.New("object store unavailable")
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=photo-derive-pipeline"

// Store provides typed get/put against one S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New creates a Store for the given bucket. The client should be initialized
// from the shared AWS config.
func New(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Bucket returns the bucket this store reads and writes.
func (s *Store) Bucket() string {
	return s.bucket
}

// Get fetches the full object body for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w: %w", key, ErrUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", key, ErrUnavailable, err)
	}

	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Object downloaded")
	return data, nil
}

// Put writes data under key with the given content type and object metadata,
// applying the project cost-allocation tag.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		Metadata:    metadata,
		Tagging:     aws.String(projectTag),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w: %w", key, ErrUnavailable, err)
	}

	log.Debug().Str("key", key).Int("bytes", len(data)).Str("contentType", contentType).Msg("Object uploaded")
	return nil
}
