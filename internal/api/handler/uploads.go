package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/gudang/internal/api/response"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temporary files.
const multipartMemory = 1 << 20

var allowedExtensions = map[string]bool{".xlsx": true}

type uploadResponse struct {
	Filename string `json:"filename"`
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/uploads.
func NewUploadHandler(uploads Uploads, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := saveMultipart(w, r, uploads, maxUploadBytes)
		if !ok {
			return
		}
		response.Created(w, uploadResponse{Filename: name})
	}
}

// saveMultipart stores the "file" part of a multipart request. It writes the
// error response itself and reports false on failure.
func saveMultipart(w http.ResponseWriter, r *http.Request, uploads Uploads, maxUploadBytes int64) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge,
				"Uploaded file exceeds the size limit", map[string]int64{"max_bytes": maxUploadBytes})
			return "", false
		}
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid multipart body", nil)
		return "", false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Invalid(w, "file is required")
		return "", false
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		response.Error(w, http.StatusBadRequest, response.CodeValidationFailed,
			"Only .xlsx spreadsheets are accepted", map[string]string{"filename": header.Filename})
		return "", false
	}

	name, err := uploads.SaveUpload(file, header.Filename)
	if err != nil {
		slog.Error("save upload", "original_name", header.Filename, "error", err)
		response.Error(w, http.StatusInternalServerError, response.CodeInternal,
			"Failed to store upload", nil)
		return "", false
	}
	slog.Info("upload stored", "filename", name, "size", header.Size)
	return name, true
}
