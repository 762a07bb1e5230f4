// Package mailqueue persists asynchronous email jobs and drains them with a
// retrying background worker.
package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/backend/internal/ids"
)

const (
	// JobStatusPending marks a job awaiting delivery.
	JobStatusPending = "pending"
	// JobStatusSent marks a delivered job.
	JobStatusSent = "sent"
	// JobStatusFailed marks a job that exhausted its attempt budget.
	JobStatusFailed = "failed"

	defaultMaxAttempts = 3
	baseBackoff        = 5 * time.Second
)

var (
	errMissingDatabase   = errors.New("mailqueue: database connection required")
	errMissingIDProvider = errors.New("mailqueue: id provider required")
)

// EmailJob is a stored delivery job.
type EmailJob struct {
	JobID                string `gorm:"column:job_id;primaryKey;size:190;not null"`
	Name                 string `gorm:"column:name;size:190;not null"`
	PayloadJSON          string `gorm:"column:payload_json;type:text;not null"`
	Status               string `gorm:"column:status;size:16;not null;index:idx_email_jobs_due,priority:1"`
	Attempts             int    `gorm:"column:attempts;not null;default:0"`
	MaxAttempts          int    `gorm:"column:max_attempts;not null;default:3"`
	NextAttemptAtSeconds int64  `gorm:"column:next_attempt_at_s;not null;index:idx_email_jobs_due,priority:2"`
	LastError            string `gorm:"column:last_error;type:text"`
	CreatedAtSeconds     int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds     int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (EmailJob) TableName() string {
	return "email_jobs"
}

// QueueConfig describes the dependencies of the queue.
type QueueConfig struct {
	Database    *gorm.DB
	IDProvider  ids.Provider
	Clock       func() time.Time
	MaxAttempts int
}

// Queue enqueues email jobs for asynchronous delivery.
type Queue struct {
	db          *gorm.DB
	ids         ids.Provider
	clock       func() time.Time
	maxAttempts int
}

// NewQueue constructs the queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Queue{db: cfg.Database, ids: cfg.IDProvider, clock: clock, maxAttempts: maxAttempts}, nil
}

// Enqueue persists a job for immediate delivery by the worker.
func (q *Queue) Enqueue(ctx context.Context, jobName string, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailqueue: payload encoding failed: %w", err)
	}
	jobID, err := q.ids.NewID()
	if err != nil {
		return fmt.Errorf("mailqueue: id generation failed: %w", err)
	}
	now := q.clock().UTC().Unix()
	job := EmailJob{
		JobID:                jobID,
		Name:                 jobName,
		PayloadJSON:          string(encoded),
		Status:               JobStatusPending,
		MaxAttempts:          q.maxAttempts,
		NextAttemptAtSeconds: now,
		CreatedAtSeconds:     now,
		UpdatedAtSeconds:     now,
	}
	if err := q.db.WithContext(ctx).Create(&job).Error; err != nil {
		return fmt.Errorf("mailqueue: insert failed: %w", err)
	}
	return nil
}

// backoffAfter computes the delay before the next attempt: exponential from
// the 5 second base (5s, 10s, 20s, ...).
func backoffAfter(attempts int) time.Duration {
	backoff := baseBackoff
	for i := 1; i < attempts; i++ {
		backoff *= 2
	}
	return backoff
}
