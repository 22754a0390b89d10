package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, last_used_at, revoked_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.RevokedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Inventory ---

func (s *PostgresStore) ListItemsForExport(ctx context.Context, filter ItemFilter) ([]*models.Item, error) {
	// Build WHERE clause dynamically
	var conditions []string
	var args []any
	argIdx := 1

	if filter.Name != "" {
		conditions = append(conditions, fmt.Sprintf("i.name ILIKE $%d", argIdx))
		args = append(args, containsPattern(filter.Name))
		argIdx++
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.name ILIKE $%d", argIdx))
		args = append(args, containsPattern(filter.Category))
		argIdx++
	}
	if filter.Stock != nil {
		conditions = append(conditions, fmt.Sprintf("i.stock = $%d", argIdx))
		args = append(args, *filter.Stock)
		argIdx++
	}

	query := `SELECT i.id, i.name, i.stock, i.category_id, i.cover, i.created_at, i.updated_at,
		        c.id, c.code, c.name, c.created_at, c.updated_at
		 FROM items i LEFT JOIN categories c ON c.id = i.category_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.created_at DESC, i.id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items for export: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		var (
			it         models.Item
			catID      *int64
			catCode    *string
			catName    *string
			catCreated *time.Time
			catUpdated *time.Time
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Stock, &it.CategoryID, &it.Cover, &it.CreatedAt, &it.UpdatedAt,
			&catID, &catCode, &catName, &catCreated, &catUpdated); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if catID != nil {
			it.Category = &models.Category{
				ID:        *catID,
				Code:      catCode,
				Name:      *catName,
				CreatedAt: *catCreated,
				UpdatedAt: *catUpdated,
			}
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// FindOrCreateCategory resolves a category by exact name, inserting it when absent.
// The no-op update makes RETURNING yield the existing row on conflict.
func (s *PostgresStore) FindOrCreateCategory(ctx context.Context, name string) (*models.Category, error) {
	var c models.Category
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, code, name, created_at, updated_at`, name,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("find or create category: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *models.Item) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO items (name, stock, category_id, cover)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		item.Name, item.Stock, item.CategoryID, item.Cover,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, kind, status, payload, result, error_code, error_message,
	started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row, j *models.Job) error {
	return row.Scan(&j.ID, &j.Kind, &j.Status, &j.Payload, &j.Result, &j.ErrorCode, &j.ErrorMessage,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, kind, status, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Kind, job.Status, job.Payload, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id), &j)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// claimSQL locks the oldest waiting job of one kind and marks it active in a
// single statement. SKIP LOCKED lets concurrent workers pass over a row another
// worker is claiming instead of blocking on it, so each job is claimed once.
const claimSQL = `
WITH candidate AS (
    SELECT id FROM jobs
    WHERE kind = $1 AND status = 'waiting'
    ORDER BY seq
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE jobs
SET status     = 'active',
    started_at = NOW(),
    updated_at = NOW()
FROM candidate
WHERE jobs.id = candidate.id
RETURNING jobs.id, jobs.kind, jobs.status, jobs.payload, jobs.result, jobs.error_code,
    jobs.error_message, jobs.started_at, jobs.completed_at, jobs.created_at, jobs.updated_at`

func (s *PostgresStore) ClaimNextJob(ctx context.Context, kind models.JobKind) (*models.Job, error) {
	var j models.Job
	err := scanJob(s.pool.QueryRow(ctx, claimSQL, kind), &j)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &j, nil
}

var validTransitions = map[string][]string{
	models.JobStatusWaiting: {models.JobStatusActive},
	models.JobStatusActive:  {models.JobStatusCompleted, models.JobStatusFailed},
}

// allowedFrom returns the statuses that may transition to status.
func allowedFrom(status string) []string {
	var from []string
	for src, targets := range validTransitions {
		for _, t := range targets {
			if t == status {
				from = append(from, src)
			}
		}
	}
	return from
}

// UpdateJobStatus moves a job forward. The transition check is part of the UPDATE
// so two writers cannot both move the same job out of the same state.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := ResolveJobUpdate(opts...)

	from := allowedFrom(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing moves to %s", ErrInvalidTransition, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusActive {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.Result != nil {
		query += fmt.Sprintf(", result = $%d", argIdx)
		args = append(args, params.Result)
		argIdx++
	}
	if params.ErrorCode != nil {
		query += fmt.Sprintf(", error_code = $%d", argIdx)
		args = append(args, *params.ErrorCode)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = ANY($%d)", argIdx)
	args = append(args, from)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

// containsPattern builds an ILIKE pattern matching s anywhere, with LIKE
// metacharacters in s taken literally.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
