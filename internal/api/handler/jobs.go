package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/gudang/internal/api/response"
	"github.com/kiranshivaraju/gudang/internal/queue"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

// JobQueue is the queue surface the API depends on.
type JobQueue interface {
	Submit(ctx context.Context, payload models.Payload) (*models.Job, error)
	GetState(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// Uploads stores and looks up uploaded spreadsheets.
type Uploads interface {
	SaveUpload(r io.Reader, originalName string) (string, error)
	UploadExists(name string) bool
	RemoveUpload(name string) error
}

const jobsPath = "/api/v1/jobs/"

type acceptedResponse struct {
	JobID uuid.UUID      `json:"job_id"`
	Kind  models.JobKind `json:"kind"`
	State string         `json:"state"`
}

type jobResponse struct {
	JobID  uuid.UUID      `json:"job_id"`
	Kind   models.JobKind `json:"kind"`
	State  string         `json:"state"`
	Result any            `json:"result"`
}

type jobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewExportHandler returns an http.HandlerFunc for POST /api/v1/items/export.
// Filters come from the query string: q, category and stock.
func NewExportHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		payload := models.ExportPayload{
			Query:    strings.TrimSpace(query.Get("q")),
			Category: strings.TrimSpace(query.Get("category")),
		}
		if raw := strings.TrimSpace(query.Get("stock")); raw != "" {
			stock, err := strconv.Atoi(raw)
			if err != nil || stock < 0 {
				response.Error(w, http.StatusBadRequest, response.CodeValidationFailed,
					"stock must be a non-negative integer", map[string]string{"stock": raw})
				return
			}
			payload.Stock = &stock
		}

		submit(w, r, q, payload)
	}
}

// NewImportHandler returns an http.HandlerFunc for POST /api/v1/items/import.
// The body is either JSON naming a stored upload or a multipart form carrying
// the spreadsheet itself in field "file".
func NewImportHandler(q JobQueue, uploads Uploads, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			name, ok := saveMultipart(w, r, uploads, maxUploadBytes)
			if !ok {
				return
			}
			// nothing else references a file stored by this request
			if !submit(w, r, q, models.ImportPayload{Filename: name}) {
				if err := uploads.RemoveUpload(name); err != nil {
					slog.Warn("remove orphaned upload", "filename", name, "error", err)
				}
			}
			return
		}

		var req struct {
			Filename string `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}
		filename := strings.TrimSpace(req.Filename)
		if filename == "" {
			response.Invalid(w, "filename is required")
			return
		}
		if !uploads.UploadExists(filename) {
			response.Error(w, http.StatusBadRequest, response.CodeValidationFailed,
				"No uploaded file with that name", map[string]string{"filename": filename})
			return
		}

		submit(w, r, q, models.ImportPayload{Filename: filename})
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, response.CodeJobNotFound, "Job not found", nil)
			return
		}

		job, err := q.GetState(r.Context(), id)
		if errors.Is(err, queue.ErrUnknownJob) {
			response.Error(w, http.StatusNotFound, response.CodeJobNotFound, "Job not found", nil)
			return
		}
		if err != nil {
			slog.Error("get job state", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, jobResponse{
			JobID:  job.ID,
			Kind:   job.Kind,
			State:  job.Status,
			Result: jobResult(job),
		})
	}
}

// jobResult is the kind result for a completed job, the error for a failed
// one and nil otherwise.
func jobResult(job *models.Job) any {
	switch job.Status {
	case models.JobStatusCompleted:
		if len(job.Result) == 0 {
			return nil
		}
		return job.Result
	case models.JobStatusFailed:
		var e jobError
		if job.ErrorCode != nil {
			e.Code = *job.ErrorCode
		}
		if job.ErrorMessage != nil {
			e.Message = *job.ErrorMessage
		}
		return e
	default:
		return nil
	}
}

// submit enqueues payload and writes the response. It reports whether a job was created.
func submit(w http.ResponseWriter, r *http.Request, q JobQueue, payload models.Payload) bool {
	job, err := q.Submit(r.Context(), payload)
	if err != nil {
		slog.Error("submit job", "kind", payload.Kind(), "error", err)
		response.Error(w, http.StatusServiceUnavailable, response.CodeQueueUnavailable,
			"The job could not be queued, try again later", nil)
		return false
	}

	slog.Info("job submitted", "job_id", job.ID, "kind", job.Kind)
	response.Accepted(w, jobsPath+job.ID.String(), acceptedResponse{JobID: job.ID, Kind: job.Kind, State: job.Status})
	return true
}
