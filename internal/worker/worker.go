// Package worker runs the blocking consume loop that executes queued export
// and import jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kiranshivaraju/gudang/internal/transfer"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

// JobQueue is the part of the queue a worker consumes.
type JobQueue interface {
	Claim(ctx context.Context, kind models.JobKind, wait time.Duration) (*models.Job, error)
	Complete(ctx context.Context, job *models.Job, result any) error
	Fail(ctx context.Context, job *models.Job, code, msg string) error
}

// Transfer is the domain logic behind the handlers.
type Transfer interface {
	Export(ctx context.Context, p models.ExportPayload) ([]*models.Item, error)
	Import(ctx context.Context, rows transfer.RowSource) (int, error)
}

// Files is the file store surface the handlers touch.
type Files interface {
	CreateExport(now time.Time) (*os.File, string, error)
	RemoveExport(name string) error
	UploadPath(name string) (string, error)
	RemoveUpload(name string) error
}

// Worker claims jobs of one kind and runs them one at a time.
type Worker struct {
	kind        models.JobKind
	queue       JobQueue
	transfer    Transfer
	files       Files
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Worker for kind. id only labels log lines.
func New(id string, kind models.JobKind, q JobQueue, t Transfer, f Files, pollTimeout time.Duration) *Worker {
	return &Worker{
		kind:        kind,
		queue:       q,
		transfer:    t,
		files:       f,
		pollTimeout: pollTimeout,
		logger:      slog.With("worker_id", id, "kind", kind),
	}
}

// Run consumes jobs until ctx is cancelled. A job already claimed when ctx is
// cancelled still runs to completion before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	for ctx.Err() == nil {
		job, err := w.queue.Claim(ctx, w.kind, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("claim failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollTimeout):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.process(context.WithoutCancel(ctx), job)
	}
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	log := w.logger.With("job_id", job.ID)
	log.Info("job started")
	start := time.Now()

	result, err := w.handle(ctx, job)
	if err != nil {
		code := errorCode(err)
		log.Error("job failed", "code", code, "error", err, "duration_ms", time.Since(start).Milliseconds())
		if ferr := w.queue.Fail(ctx, job, code, err.Error()); ferr != nil {
			log.Error("record job failure", "error", ferr)
		}
		return
	}

	if err := w.queue.Complete(ctx, job, result); err != nil {
		log.Error("record job completion", "error", err)
		return
	}
	log.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
}

func (w *Worker) handle(ctx context.Context, job *models.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in job handler", "job_id", job.ID, "panic", r)
			result, err = nil, fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	payload, err := job.DecodePayload()
	if err != nil {
		return nil, err
	}
	switch p := payload.(type) {
	case models.ExportPayload:
		return w.export(ctx, p)
	case models.ImportPayload:
		return w.importUpload(ctx, p)
	default:
		return nil, fmt.Errorf("no handler for %T", payload)
	}
}

var errPanic = errors.New("handler panicked")

// ioError marks a failure reading or writing a file.
type ioError struct {
	err error
}

func (e *ioError) Error() string { return e.err.Error() }
func (e *ioError) Unwrap() error { return e.err }

func errorCode(err error) string {
	var ioErr *ioError
	switch {
	case errors.Is(err, transfer.ErrNoItems):
		return models.JobErrNotFound
	case errors.As(err, &ioErr), errors.Is(err, transfer.ErrSourceUnreadable):
		return models.JobErrIO
	default:
		return models.JobErrInternal
	}
}
