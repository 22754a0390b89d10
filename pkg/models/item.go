// Package models contains shared data models used across the gudang codebase.
package models

import "time"

// Category groups items. Name is the natural key used when importing spreadsheets.
type Category struct {
	ID        int64     `db:"id"         json:"id"`
	Code      *string   `db:"code"       json:"code,omitempty"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Item is an inventory record. CategoryID is nullable; Category is populated
// only by queries that join it.
type Item struct {
	ID         int64     `db:"id"          json:"id"`
	Name       string    `db:"name"        json:"name"`
	Stock      int       `db:"stock"       json:"stock"`
	CategoryID *int64    `db:"category_id" json:"category_id,omitempty"`
	Category   *Category `db:"-"           json:"category,omitempty"`
	Cover      *string   `db:"cover"       json:"cover,omitempty"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
}

// CategoryName returns the joined category name, or "" when the item has none.
func (i *Item) CategoryName() string {
	if i.Category == nil {
		return ""
	}
	return i.Category.Name
}
