package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/internal/events"
)

// AuditSource supplies the execution records to back up.
type AuditSource interface {
	ListSince(since time.Time) ([]domain.TradeExecutionRecord, error)
}

// AuditBackupJob ships the previous day's trade execution trail to S3.
// The audit trail is the compliance record; losing the local database
// must not lose it.
type AuditBackupJob struct {
	source   AuditSource
	uploader *manager.Uploader
	bucket   string
	prefix   string
	events   *events.Manager
	log      zerolog.Logger
}

// NewAuditBackupJob creates the backup job.
func NewAuditBackupJob(source AuditSource, client *s3.Client, bucket, prefix string, eventManager *events.Manager, log zerolog.Logger) *AuditBackupJob {
	return &AuditBackupJob{
		source:   source,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		events:   eventManager,
		log:      log.With().Str("job", "audit_backup").Logger(),
	}
}

// Name returns the job name.
func (j *AuditBackupJob) Name() string {
	return "audit_backup"
}

// Run uploads the last 24 hours of execution records as one JSON object
// keyed by date. Re-runs overwrite the same key, so the job is idempotent
// within a day.
func (j *AuditBackupJob) Run() error {
	since := time.Now().Add(-24 * time.Hour)
	records, err := j.source.ListSince(since)
	if err != nil {
		return fmt.Errorf("failed to load execution records: %w", err)
	}
	if len(records) == 0 {
		j.log.Debug().Msg("No execution records to back up")
		return nil
	}

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution records: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", j.prefix, time.Now().Format("2006-01-02"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err = j.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(j.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload audit backup: %w", err)
	}

	j.events.Emit(events.BackupCompleted, "scheduler", map[string]interface{}{
		"bucket":  j.bucket,
		"key":     key,
		"records": len(records),
	})
	j.log.Info().Str("key", key).Int("records", len(records)).Msg("Audit backup uploaded")

	return nil
}
