package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 16
)

// Sender delivers a single email job. Implementations wrap the actual mail
// transport.
type Sender interface {
	Send(ctx context.Context, jobName string, payload map[string]any) error
}

var errMissingSender = errors.New("mailqueue: sender required")

// WorkerConfig describes the dependencies of the delivery worker.
type WorkerConfig struct {
	Database     *gorm.DB
	Sender       Sender
	Clock        func() time.Time
	Logger       *zap.Logger
	PollInterval time.Duration
	BatchSize    int
}

// Worker polls the job table and delivers due jobs, rescheduling failures
// with exponential backoff until the attempt budget runs out.
type Worker struct {
	db        *gorm.DB
	sender    Sender
	clock     func() time.Time
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	done      chan struct{}
	closeOnce sync.Once
}

// NewWorker constructs the worker and starts its polling goroutine. Call
// Close at shutdown.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Sender == nil {
		return nil, errMissingSender
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	worker := &Worker{
		db:        cfg.Database,
		sender:    cfg.Sender,
		clock:     clock,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
	go worker.run()
	return worker, nil
}

// Close stops the polling goroutine. Idempotent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.ProcessDue(context.Background()); err != nil {
				w.logger.Error("email job processing failed", zap.Error(err))
			}
		}
	}
}

// ProcessDue delivers every pending job whose next attempt time has passed.
func (w *Worker) ProcessDue(ctx context.Context) error {
	now := w.clock().UTC().Unix()
	var due []EmailJob
	err := w.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at_s <= ?", JobStatusPending, now).
		Order("next_attempt_at_s ASC").
		Limit(w.batchSize).
		Find(&due).Error
	if err != nil {
		return err
	}
	for _, job := range due {
		w.deliver(ctx, job)
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, job EmailJob) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		w.finalize(ctx, job, JobStatusFailed, "payload decoding failed: "+err.Error())
		return
	}

	sendErr := w.sender.Send(ctx, job.Name, payload)
	if sendErr == nil {
		w.finalize(ctx, job, JobStatusSent, "")
		return
	}

	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		w.logger.Warn("email job exhausted attempts",
			zap.String("job_id", job.JobID),
			zap.String("job", job.Name),
			zap.Int("attempts", attempts),
			zap.Error(sendErr))
		w.finalize(ctx, job, JobStatusFailed, sendErr.Error())
		return
	}

	nextAttempt := w.clock().UTC().Add(backoffAfter(attempts)).Unix()
	updates := map[string]any{
		"attempts":          attempts,
		"next_attempt_at_s": nextAttempt,
		"last_error":        sendErr.Error(),
		"updated_at_s":      w.clock().UTC().Unix(),
	}
	if err := w.db.WithContext(ctx).
		Model(&EmailJob{}).
		Where("job_id = ?", job.JobID).
		Updates(updates).Error; err != nil {
		w.logger.Error("email job reschedule failed",
			zap.String("job_id", job.JobID), zap.Error(err))
	}
}

func (w *Worker) finalize(ctx context.Context, job EmailJob, status, lastError string) {
	updates := map[string]any{
		"status":       status,
		"attempts":     job.Attempts + 1,
		"last_error":   lastError,
		"updated_at_s": w.clock().UTC().Unix(),
	}
	if err := w.db.WithContext(ctx).
		Model(&EmailJob{}).
		Where("job_id = ?", job.JobID).
		Updates(updates).Error; err != nil {
		w.logger.Error("email job finalize failed",
			zap.String("job_id", job.JobID), zap.Error(err))
	}
}

// LoggingSender is a Sender that only logs deliveries. It stands in where no
// SMTP transport is configured.
type LoggingSender struct {
	Logger *zap.Logger
}

// Send logs the job instead of delivering it.
func (s *LoggingSender) Send(_ context.Context, jobName string, payload map[string]any) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	email, _ := payload["invitee_email"].(string)
	logger.Info("email job delivered",
		zap.String("job", jobName),
		zap.String("invitee_email", email))
	return nil
}
