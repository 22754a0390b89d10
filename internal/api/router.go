package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/gudang/internal/api/middleware"
	"github.com/kiranshivaraju/gudang/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	UploadHandler    http.HandlerFunc
	ExportHandler    http.HandlerFunc
	ImportHandler    http.HandlerFunc
	JobStatusHandler http.HandlerFunc

	// Exports is served read-only under /exports/. Nil disables downloads.
	Exports ExportFiles
}

// ExportFiles resolves a generated export by name.
type ExportFiles interface {
	ExportPath(name string) (string, error)
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.Exports != nil {
		r.Get("/exports/*", downloads(deps.Exports))
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/uploads", orNotImplemented(deps.UploadHandler))

		r.Post("/api/v1/items/export", orNotImplemented(deps.ExportHandler))
		r.Post("/api/v1/items/import", orNotImplemented(deps.ImportHandler))

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.JobStatusHandler))
	})

	return r
}

// downloads serves single export files. Anything that is not a bare name of a
// regular file, directories included, is a 404.
func downloads(files ExportFiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := files.ExportPath(chi.URLParam(r, "*"))
		if err != nil {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "File not found", nil)
			return
		}
		f, err := os.Open(path)
		if err != nil {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "File not found", nil)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "File not found", nil)
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
