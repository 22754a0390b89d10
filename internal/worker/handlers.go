package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/gudang/internal/spreadsheet"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

// ExportURLPrefix is where the API serves the export directory.
const ExportURLPrefix = "/exports/"

func (w *Worker) export(ctx context.Context, p models.ExportPayload) (models.ExportResult, error) {
	items, err := w.transfer.Export(ctx, p)
	if err != nil {
		return models.ExportResult{}, err
	}

	f, name, err := w.files.CreateExport(time.Now())
	if err != nil {
		return models.ExportResult{}, &ioError{err}
	}
	if err := spreadsheet.Encode(f, items); err != nil {
		f.Close()
		w.removeExport(name)
		return models.ExportResult{}, &ioError{fmt.Errorf("encode export: %w", err)}
	}
	if err := f.Close(); err != nil {
		w.removeExport(name)
		return models.ExportResult{}, &ioError{fmt.Errorf("close export: %w", err)}
	}

	return models.ExportResult{
		DownloadURL: ExportURLPrefix + name,
		Filename:    name,
		Rows:        len(items),
	}, nil
}

// importUpload ingests an uploaded workbook. The upload is removed only when
// the whole file was ingested; on failure it stays on disk for inspection.
func (w *Worker) importUpload(ctx context.Context, p models.ImportPayload) (models.ImportResult, error) {
	path, err := w.files.UploadPath(p.Filename)
	if err != nil {
		return models.ImportResult{}, &ioError{err}
	}
	rows, err := spreadsheet.OpenFile(path)
	if err != nil {
		return models.ImportResult{}, &ioError{fmt.Errorf("open upload %s: %w", p.Filename, err)}
	}

	imported, err := w.transfer.Import(ctx, rows)
	skipped := rows.Skipped()
	if cerr := rows.Close(); cerr != nil {
		w.logger.Warn("close upload", "filename", p.Filename, "error", cerr)
	}
	if err != nil {
		return models.ImportResult{}, fmt.Errorf("import %s after %d rows: %w", p.Filename, imported, err)
	}

	if err := w.files.RemoveUpload(p.Filename); err != nil {
		w.logger.Warn("remove imported upload", "filename", p.Filename, "error", err)
	}
	return models.ImportResult{Imported: imported, Skipped: skipped}, nil
}

func (w *Worker) removeExport(name string) {
	if err := w.files.RemoveExport(name); err != nil {
		w.logger.Warn("remove partial export", "filename", name, "error", err)
	}
}
