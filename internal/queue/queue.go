// Package queue is the durable per-kind FIFO job queue shared by the API and
// the worker. Job rows in PostgreSQL are authoritative; Redis carries wake-up
// signals and a short-lived copy of each job's state.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/gudang/internal/cache"
	"github.com/kiranshivaraju/gudang/internal/store"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

// ErrUnknownJob is returned by GetState for an id that was never issued.
var ErrUnknownJob = errors.New("unknown job")

// Queue submits, claims and settles jobs. It is safe for concurrent use.
type Queue struct {
	jobs      store.JobStore
	cache     cache.Cache
	statusTTL time.Duration
}

// New creates a Queue over the job store and cache.
func New(jobs store.JobStore, c cache.Cache, statusTTL time.Duration) *Queue {
	return &Queue{jobs: jobs, cache: c, statusTTL: statusTTL}
}

// Submit enqueues a waiting job for payload and returns it without waiting for
// execution. It fails only when the job row cannot be written.
func (q *Queue) Submit(ctx context.Context, payload models.Payload) (*models.Job, error) {
	if payload == nil {
		return nil, errors.New("submit: nil payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Kind:      payload.Kind(),
		Status:    models.JobStatusWaiting,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Cached before the insert so a fast worker's later writes are never
	// overwritten by this one.
	q.cacheState(ctx, job)
	if err := q.jobs.CreateJob(ctx, job); err != nil {
		_ = q.cache.Delete(ctx, cache.JobStatusKey(job.ID))
		return nil, fmt.Errorf("enqueue %s job: %w", job.Kind, err)
	}

	if err := q.cache.Signal(ctx, job.Kind, job.ID); err != nil {
		slog.Warn("queue signal failed, workers will pick the job up on poll",
			"job_id", job.ID, "kind", job.Kind, "error", err)
	}
	return job, nil
}

// GetState returns the job's current state. For jobs still waiting or active
// the cached state may be returned, carrying only id, kind and status.
func (q *Queue) GetState(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	state, found, err := q.cache.GetJobState(ctx, id)
	if err != nil {
		slog.Warn("job state cache read failed", "job_id", id, "error", err)
	}
	if found && !isTerminal(state.Status) {
		return &models.Job{ID: id, Kind: state.Kind, Status: state.Status}, nil
	}

	job, err := q.jobs.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownJob
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Claim moves the oldest waiting job of kind to active and returns it. When
// nothing is waiting it blocks for up to wait for a submit signal and tries
// once more. It returns nil, nil when no job became available.
func (q *Queue) Claim(ctx context.Context, kind models.JobKind, wait time.Duration) (*models.Job, error) {
	job, err := q.claim(ctx, kind)
	if err != nil || job != nil {
		return job, err
	}

	if _, err := q.cache.WaitSignal(ctx, kind, wait); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("queue wait failed, falling back to polling", "kind", kind, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return q.claim(ctx, kind)
}

func (q *Queue) claim(ctx context.Context, kind models.JobKind) (*models.Job, error) {
	job, err := q.jobs.ClaimNextJob(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("claim %s job: %w", kind, err)
	}
	if job != nil {
		q.cacheState(ctx, job)
	}
	return job, nil
}

// Complete records result on an active job and marks it completed.
func (q *Queue) Complete(ctx context.Context, job *models.Job, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := q.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, store.WithResult(raw)); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	job.Status = models.JobStatusCompleted
	job.Result = raw
	q.cacheState(ctx, job)
	return nil
}

// Fail records an error code and message on an active job and marks it failed.
func (q *Queue) Fail(ctx context.Context, job *models.Job, code, msg string) error {
	if err := q.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithError(code, msg)); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	job.Status = models.JobStatusFailed
	job.ErrorCode = &code
	job.ErrorMessage = &msg
	q.cacheState(ctx, job)
	return nil
}

// cacheState mirrors the job's status into Redis. A failed write drops the key
// so GetState falls back to the store instead of serving a stale status.
func (q *Queue) cacheState(ctx context.Context, job *models.Job) {
	state := cache.JobState{Kind: job.Kind, Status: job.Status}
	if err := q.cache.SetJobState(ctx, job.ID, state, q.statusTTL); err != nil {
		slog.Warn("job state cache write failed", "job_id", job.ID, "status", job.Status, "error", err)
		_ = q.cache.Delete(ctx, cache.JobStatusKey(job.ID))
	}
}

func isTerminal(status string) bool {
	return status == models.JobStatusCompleted || status == models.JobStatusFailed
}
