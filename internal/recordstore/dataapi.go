package recordstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdsdatatypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/rs/zerolog/log"
)

// dbTimeFormat is the timestamp layout the RDS Data API accepts for
// TypeHintTimestamp parameters and returns in query results.
const dbTimeFormat = "2006-01-02 15:04:05"

// DataAPIStore implements Store against Aurora through the RDS Data API.
// The Data API is connectionless — each statement is an HTTPS call — so no
// connection pool or per-call connection lifecycle exists to manage.
type DataAPIStore struct {
	client     *rdsdata.Client
	clusterARN string
	secretARN  string
	database   string
}

// Compile-time interface check.
var _ Store = (*DataAPIStore)(nil)

// NewDataAPIStore creates a DataAPIStore for the given cluster.
// The client should be initialized from the shared AWS config.
func NewDataAPIStore(client *rdsdata.Client, clusterARN, secretARN, database string) *DataAPIStore {
	return &DataAPIStore{
		client:     client,
		clusterARN: clusterARN,
		secretARN:  secretARN,
		database:   database,
	}
}

// --- Statement helpers ---

func (s *DataAPIStore) exec(ctx context.Context, sql string, params []rdsdatatypes.SqlParameter) error {
	_, err := s.client.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn: aws.String(s.clusterARN),
		SecretArn:   aws.String(s.secretARN),
		Database:    aws.String(s.database),
		Sql:         aws.String(sql),
		Parameters:  params,
	})
	return err
}

func (s *DataAPIStore) query(ctx context.Context, sql string, params []rdsdatatypes.SqlParameter) ([]map[string]interface{}, error) {
	result, err := s.client.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn:           aws.String(s.clusterARN),
		SecretArn:             aws.String(s.secretARN),
		Database:              aws.String(s.database),
		Sql:                   aws.String(sql),
		Parameters:            params,
		IncludeResultMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	return rowsFromRecords(result.ColumnMetadata, result.Records), nil
}

// rowsFromRecords converts Data API records plus column metadata into one
// map per row, keyed by column name. Null fields map to nil.
func rowsFromRecords(columns []rdsdatatypes.ColumnMetadata, records [][]rdsdatatypes.Field) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		row := make(map[string]interface{})
		for i, col := range columns {
			if i >= len(rec) {
				break
			}
			name := aws.ToString(col.Name)
			switch v := rec[i].(type) {
			case *rdsdatatypes.FieldMemberStringValue:
				row[name] = v.Value
			case *rdsdatatypes.FieldMemberLongValue:
				row[name] = v.Value
			case *rdsdatatypes.FieldMemberDoubleValue:
				row[name] = v.Value
			case *rdsdatatypes.FieldMemberBooleanValue:
				row[name] = v.Value
			case *rdsdatatypes.FieldMemberIsNull:
				row[name] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func strParam(name, value string) rdsdatatypes.SqlParameter {
	return rdsdatatypes.SqlParameter{
		Name:  aws.String(name),
		Value: &rdsdatatypes.FieldMemberStringValue{Value: value},
	}
}

func longParam(name string, value int64) rdsdatatypes.SqlParameter {
	return rdsdatatypes.SqlParameter{
		Name:  aws.String(name),
		Value: &rdsdatatypes.FieldMemberLongValue{Value: value},
	}
}

func timeParam(name string, t time.Time) rdsdatatypes.SqlParameter {
	return rdsdatatypes.SqlParameter{
		Name:     aws.String(name),
		Value:    &rdsdatatypes.FieldMemberStringValue{Value: t.UTC().Format(dbTimeFormat)},
		TypeHint: rdsdatatypes.TypeHintTimestamp,
	}
}

func nullParam(name string) rdsdatatypes.SqlParameter {
	return rdsdatatypes.SqlParameter{
		Name:  aws.String(name),
		Value: &rdsdatatypes.FieldMemberIsNull{Value: true},
	}
}

// --- Row accessors ---

func rowString(row map[string]interface{}, name string) string {
	if v, ok := row[name].(string); ok {
		return v
	}
	return ""
}

func rowInt64(row map[string]interface{}, name string) int64 {
	switch v := row[name].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func rowFloat(row map[string]interface{}, name string) float64 {
	switch v := row[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		// Aurora returns AVG() as a decimal string.
		var f float64
		fmt.Sscanf(v, "%g", &f)
		return f
	}
	return 0
}

// rowTime parses a timestamp column. Returns nil for NULL or unparseable
// values. The Data API returns timestamps with or without fractional seconds.
func rowTime(row map[string]interface{}, name string) *time.Time {
	s, ok := row[name].(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range []string{dbTimeFormat, "2006-01-02 15:04:05.999999", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// --- Upload flow ---

func (s *DataAPIStore) InsertImage(ctx context.Context, rec *ImageRecord) error {
	sql := `INSERT INTO images (
			filename, original_filename, file_size, mime_type,
			s3_key, s3_bucket, image_width, image_height, image_format,
			camera_make, camera_model, taken_at, upload_ip,
			annotation_status, thumbnail_status
		) VALUES (
			:filename, :original_filename, :file_size, :mime_type,
			:s3_key, :s3_bucket, :image_width, :image_height, :image_format,
			:camera_make, :camera_model, :taken_at, :upload_ip,
			:annotation_status, :thumbnail_status
		)`

	params := []rdsdatatypes.SqlParameter{
		strParam("filename", rec.Filename),
		strParam("original_filename", rec.OriginalFilename),
		longParam("file_size", rec.FileSize),
		strParam("mime_type", rec.MimeType),
		strParam("s3_key", rec.S3Key),
		strParam("s3_bucket", rec.S3Bucket),
		longParam("image_width", int64(rec.ImageWidth)),
		longParam("image_height", int64(rec.ImageHeight)),
		strParam("image_format", rec.ImageFormat),
		strParam("upload_ip", rec.UploadIP),
		strParam("annotation_status", StatusPending),
		strParam("thumbnail_status", StatusPending),
	}
	if rec.CameraMake != "" {
		params = append(params, strParam("camera_make", rec.CameraMake))
	} else {
		params = append(params, nullParam("camera_make"))
	}
	if rec.CameraModel != "" {
		params = append(params, strParam("camera_model", rec.CameraModel))
	} else {
		params = append(params, nullParam("camera_model"))
	}
	if !rec.TakenAt.IsZero() {
		params = append(params, timeParam("taken_at", rec.TakenAt))
	} else {
		params = append(params, nullParam("taken_at"))
	}

	if err := s.exec(ctx, sql, params); err != nil {
		return fmt.Errorf("insert image %s: %w", rec.Filename, err)
	}

	log.Debug().Str("filename", rec.Filename).Int64("size", rec.FileSize).Msg("Image record inserted")
	return nil
}

// --- Status transitions ---
//
// Each transition is a single UPDATE that writes the status and its payload
// columns together, so pollers never observe a partially applied transition.

func (s *DataAPIStore) SetProcessing(ctx context.Context, filename string, kind Kind) error {
	var sql string
	switch kind {
	case KindAnnotation:
		sql = `UPDATE images
			SET annotation_status = :status,
				annotation = NULL,
				annotation_error = NULL,
				annotation_generated_at = NULL,
				annotation_started_at = :started_at
			WHERE filename = :filename`
	case KindThumbnail:
		sql = `UPDATE images
			SET thumbnail_status = :status,
				thumbnail_key = NULL,
				thumbnail_size = NULL,
				thumbnail_error = NULL,
				thumbnail_generated_at = NULL,
				thumbnail_started_at = :started_at
			WHERE filename = :filename`
	default:
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	params := []rdsdatatypes.SqlParameter{
		strParam("status", StatusProcessing),
		timeParam("started_at", time.Now()),
		strParam("filename", filename),
	}
	if err := s.exec(ctx, sql, params); err != nil {
		return fmt.Errorf("set %s processing for %s: %w", kind, filename, err)
	}

	log.Info().Str("filename", filename).Str("kind", string(kind)).Str("status", StatusProcessing).Msg("Status updated")
	return nil
}

func (s *DataAPIStore) SetCompleted(ctx context.Context, filename string, kind Kind, res Result, at time.Time) error {
	var sql string
	var params []rdsdatatypes.SqlParameter

	switch kind {
	case KindAnnotation:
		sql = `UPDATE images
			SET annotation_status = :status,
				annotation = :annotation,
				annotation_error = NULL,
				annotation_generated_at = :generated_at
			WHERE filename = :filename`
		params = []rdsdatatypes.SqlParameter{
			strParam("status", StatusCompleted),
			strParam("annotation", res.Annotation),
			timeParam("generated_at", at),
			strParam("filename", filename),
		}
	case KindThumbnail:
		sql = `UPDATE images
			SET thumbnail_status = :status,
				thumbnail_key = :thumbnail_key,
				thumbnail_size = :thumbnail_size,
				thumbnail_error = NULL,
				thumbnail_generated_at = :generated_at
			WHERE filename = :filename`
		params = []rdsdatatypes.SqlParameter{
			strParam("status", StatusCompleted),
			strParam("thumbnail_key", res.ThumbnailKey),
			longParam("thumbnail_size", res.ThumbnailSize),
			timeParam("generated_at", at),
			strParam("filename", filename),
		}
	default:
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	if err := s.exec(ctx, sql, params); err != nil {
		return fmt.Errorf("set %s completed for %s: %w", kind, filename, err)
	}

	log.Info().Str("filename", filename).Str("kind", string(kind)).Str("status", StatusCompleted).Msg("Status updated")
	return nil
}

func (s *DataAPIStore) SetFailed(ctx context.Context, filename string, kind Kind, errMsg string) error {
	var sql string
	switch kind {
	case KindAnnotation:
		sql = `UPDATE images
			SET annotation_status = :status,
				annotation = NULL,
				annotation_error = :error_message
			WHERE filename = :filename`
	case KindThumbnail:
		sql = `UPDATE images
			SET thumbnail_status = :status,
				thumbnail_key = NULL,
				thumbnail_size = NULL,
				thumbnail_error = :error_message
			WHERE filename = :filename`
	default:
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	params := []rdsdatatypes.SqlParameter{
		strParam("status", StatusFailed),
		strParam("error_message", truncate(errMsg, 1024)),
		strParam("filename", filename),
	}
	if err := s.exec(ctx, sql, params); err != nil {
		return fmt.Errorf("set %s failed for %s: %w", kind, filename, err)
	}

	log.Info().Str("filename", filename).Str("kind", string(kind)).Str("status", StatusFailed).Msg("Status updated")
	return nil
}

// --- Read paths ---

func (s *DataAPIStore) GetStatus(ctx context.Context, filename string) (*ImageStatus, error) {
	sql := `SELECT filename, annotation_status, thumbnail_status,
			annotation, annotation_error, annotation_generated_at,
			thumbnail_key, thumbnail_size, thumbnail_error, thumbnail_generated_at
		FROM images WHERE filename = :filename`

	rows, err := s.query(ctx, sql, []rdsdatatypes.SqlParameter{strParam("filename", filename)})
	if err != nil {
		return nil, fmt.Errorf("get status for %s: %w", filename, err)
	}
	if len(rows) == 0 {
		return nil, ErrRecordNotFound
	}

	row := rows[0]
	st := &ImageStatus{
		Filename:              rowString(row, "filename"),
		AnnotationStatus:      rowString(row, "annotation_status"),
		ThumbnailStatus:       rowString(row, "thumbnail_status"),
		Annotation:            rowString(row, "annotation"),
		AnnotationError:       rowString(row, "annotation_error"),
		ThumbnailKey:          rowString(row, "thumbnail_key"),
		ThumbnailSize:         rowInt64(row, "thumbnail_size"),
		ThumbnailError:        rowString(row, "thumbnail_error"),
		AnnotationGeneratedAt: rowTime(row, "annotation_generated_at"),
		ThumbnailGeneratedAt:  rowTime(row, "thumbnail_generated_at"),
	}
	return st, nil
}

func (s *DataAPIStore) ListImages(ctx context.Context) ([]ImageSummary, error) {
	sql := `SELECT filename, original_filename, annotation_status, annotation,
			thumbnail_status, uploaded_at, file_size, image_width, image_height
		FROM images ORDER BY uploaded_at DESC`

	rows, err := s.query(ctx, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	summaries := make([]ImageSummary, 0, len(rows))
	for _, row := range rows {
		sum := ImageSummary{
			Filename:          rowString(row, "filename"),
			OriginalFilename:  rowString(row, "original_filename"),
			AnnotationStatus:  rowString(row, "annotation_status"),
			AnnotationPreview: truncate(rowString(row, "annotation"), 100),
			ThumbnailStatus:   rowString(row, "thumbnail_status"),
			FileSize:          rowInt64(row, "file_size"),
			ImageWidth:        int(rowInt64(row, "image_width")),
			ImageHeight:       int(rowInt64(row, "image_height")),
		}
		if t := rowTime(row, "uploaded_at"); t != nil {
			sum.UploadedAt = *t
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func (s *DataAPIStore) Stats(ctx context.Context) (*GalleryStats, error) {
	sql := `SELECT
			COUNT(*) AS total_images,
			SUM(CASE WHEN annotation_status = 'completed' THEN 1 ELSE 0 END) AS completed_annotations,
			SUM(CASE WHEN thumbnail_status = 'completed' THEN 1 ELSE 0 END) AS completed_thumbnails,
			SUM(CASE WHEN annotation_status = 'failed' OR thumbnail_status = 'failed' THEN 1 ELSE 0 END) AS failed_processing,
			AVG(file_size) AS avg_file_size,
			SUM(file_size) AS total_storage_used
		FROM images`

	rows, err := s.query(ctx, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("gallery stats: %w", err)
	}
	if len(rows) == 0 {
		return &GalleryStats{}, nil
	}

	row := rows[0]
	return &GalleryStats{
		TotalImages:          rowInt64(row, "total_images"),
		CompletedAnnotations: rowInt64(row, "completed_annotations"),
		CompletedThumbnails:  rowInt64(row, "completed_thumbnails"),
		FailedProcessing:     rowInt64(row, "failed_processing"),
		AvgFileSize:          rowFloat(row, "avg_file_size"),
		TotalStorageUsed:     rowInt64(row, "total_storage_used"),
	}, nil
}

func (s *DataAPIStore) ListStaleProcessing(ctx context.Context, olderThan time.Duration) ([]StaleJob, error) {
	sql := `SELECT filename, s3_key, s3_bucket,
			annotation_status, annotation_started_at,
			thumbnail_status, thumbnail_started_at
		FROM images
		WHERE annotation_status = 'processing' OR thumbnail_status = 'processing'`

	rows, err := s.query(ctx, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("list stale processing: %w", err)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	var stale []StaleJob
	for _, row := range rows {
		base := StaleJob{
			Filename: rowString(row, "filename"),
			S3Key:    rowString(row, "s3_key"),
			S3Bucket: rowString(row, "s3_bucket"),
		}
		if rowString(row, "annotation_status") == StatusProcessing {
			if t := rowTime(row, "annotation_started_at"); t == nil || t.Before(cutoff) {
				job := base
				job.Kind = KindAnnotation
				stale = append(stale, job)
			}
		}
		if rowString(row, "thumbnail_status") == StatusProcessing {
			if t := rowTime(row, "thumbnail_started_at"); t == nil || t.Before(cutoff) {
				job := base
				job.Kind = KindThumbnail
				stale = append(stale, job)
			}
		}
	}
	return stale, nil
}

// truncate limits s to max bytes, appending an ellipsis marker when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
