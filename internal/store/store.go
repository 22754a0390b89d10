package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	JobStore
	InventoryStore
	APIKeyStore
}

// JobStore persists job records. It is the durable half of the job queue.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// ClaimNextJob atomically moves the oldest waiting job of kind to active.
	// Returns nil, nil when nothing is waiting.
	ClaimNextJob(ctx context.Context, kind models.JobKind) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

// InventoryStore is the relational surface the transfer service reads and writes.
type InventoryStore interface {
	ListItemsForExport(ctx context.Context, filter ItemFilter) ([]*models.Item, error)
	FindOrCreateCategory(ctx context.Context, name string) (*models.Category, error)
	CreateItem(ctx context.Context, item *models.Item) error
}

type APIKeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// ItemFilter narrows an export. Zero-valued fields do not filter; set fields are ANDed.
// Name and Category match case-insensitive substrings, Stock matches exactly.
type ItemFilter struct {
	Name     string
	Category string
	Stock    *int
}

// JobUpdate holds the optional columns written alongside a status change.
type JobUpdate struct {
	Result       json.RawMessage
	ErrorCode    *string
	ErrorMessage *string
}

type JobUpdateOption func(*JobUpdate)

// ResolveJobUpdate applies opts in order.
func ResolveJobUpdate(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithResult(result json.RawMessage) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Result = result
	}
}

func WithError(code, msg string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ErrorCode = &code
		p.ErrorMessage = &msg
	}
}
