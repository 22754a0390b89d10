package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind names a job queue. Each kind has its own FIFO and its own workers.
type JobKind string

const (
	JobKindExport JobKind = "export"
	JobKindImport JobKind = "import"
)

// JobKinds lists every kind a worker process serves.
var JobKinds = []JobKind{JobKindExport, JobKindImport}

const (
	JobStatusWaiting   = "waiting"
	JobStatusActive    = "active"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job error codes recorded on failed jobs.
const (
	JobErrNotFound = "NOT_FOUND"
	JobErrIO       = "IO_ERROR"
	JobErrInternal = "INTERNAL"
)

// Job tracks one asynchronous export or import. The API returns the job id on submit;
// the client polls GET /api/v1/jobs/{job_id} until status is completed or failed.
type Job struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	Kind         JobKind         `db:"kind"          json:"kind"`
	Status       string          `db:"status"        json:"status"`
	Payload      json.RawMessage `db:"payload"       json:"payload"`
	Result       json.RawMessage `db:"result"        json:"result,omitempty"`
	ErrorCode    *string         `db:"error_code"    json:"error_code,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// DecodePayload returns the typed payload for the job's kind.
func (j *Job) DecodePayload() (Payload, error) {
	switch j.Kind {
	case JobKindExport:
		var p ExportPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode export payload: %w", err)
		}
		return p, nil
	case JobKindImport:
		var p ImportPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode import payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

// Payload is the closed set of job inputs: ExportPayload or ImportPayload.
type Payload interface {
	Kind() JobKind
	payload()
}

// ExportPayload filters the items to export. Empty fields do not filter.
type ExportPayload struct {
	Query    string `json:"q,omitempty"`
	Category string `json:"category,omitempty"`
	Stock    *int   `json:"stock,omitempty"`
}

func (ExportPayload) Kind() JobKind { return JobKindExport }
func (ExportPayload) payload()      {}

// ImportPayload references an uploaded spreadsheet by its storage name.
type ImportPayload struct {
	Filename string `json:"filename"`
}

func (ImportPayload) Kind() JobKind { return JobKindImport }
func (ImportPayload) payload()      {}

// ExportResult is stored on a completed export job.
type ExportResult struct {
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
	Rows        int    `json:"rows"`
}

// ImportResult is stored on a completed import job. Skipped counts malformed rows.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
