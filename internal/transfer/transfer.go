// Package transfer moves items between the relational store and spreadsheet rows.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/gudang/internal/spreadsheet"
	"github.com/kiranshivaraju/gudang/internal/store"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

var (
	// ErrNoItems is returned by Export when no item matches the filters.
	ErrNoItems = errors.New("no items match the export filters")
	// ErrSourceUnreadable wraps row source read failures during Import.
	ErrSourceUnreadable = errors.New("import source unreadable")
)

// RowSource yields decoded spreadsheet rows. *spreadsheet.Reader implements it.
type RowSource interface {
	Next() bool
	Row() spreadsheet.Row
	Err() error
}

// Service implements the export query and the row-by-row import.
type Service struct {
	store store.InventoryStore
}

// NewService creates a Service over the inventory store.
func NewService(s store.InventoryStore) *Service {
	return &Service{store: s}
}

// Export returns every item matching all set filters, newest first.
func (s *Service) Export(ctx context.Context, p models.ExportPayload) ([]*models.Item, error) {
	items, err := s.store.ListItemsForExport(ctx, store.ItemFilter{
		Name:     p.Query,
		Category: p.Category,
		Stock:    p.Stock,
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

// Import creates one item per row, resolving categories by exact name.
// Rows are never merged with existing items. Rows committed before an error
// stay committed; the returned count includes them.
func (s *Service) Import(ctx context.Context, rows RowSource) (int, error) {
	categories := make(map[string]int64)
	imported := 0
	for rows.Next() {
		row := rows.Row()

		catID, ok := categories[row.Category]
		if !ok {
			cat, err := s.store.FindOrCreateCategory(ctx, row.Category)
			if err != nil {
				return imported, fmt.Errorf("resolve category %q: %w", row.Category, err)
			}
			catID = cat.ID
			categories[row.Category] = catID
		}

		item := &models.Item{Name: row.Name, Stock: row.Stock, CategoryID: &catID}
		if err := s.store.CreateItem(ctx, item); err != nil {
			return imported, fmt.Errorf("create item %q: %w", row.Name, err)
		}
		imported++
	}
	if err := rows.Err(); err != nil {
		return imported, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	return imported, nil
}
