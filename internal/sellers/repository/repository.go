// Package repository persists sellers. Sellers are matched against external
// rows by normalized name; they are deactivated instead of deleted so
// historical lead attribution survives.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("seller not found")

type Seller struct {
	ID        uuid.UUID
	Name      string
	NameKey   string
	ChatID    *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NormalizeName is the uniqueness key: trimmed, case-insensitive, inner
// whitespace collapsed.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

const sellerColumns = `id, name, name_key, chat_id, active, created_at, updated_at`

// GetByName resolves a seller by normalized name, the same
// case-insensitive, trimmed match the reconciler applies to the external
// Seller column.
func (r *Repository) GetByName(ctx context.Context, name string) (Seller, error) {
	key := NormalizeName(name)
	if key == "" {
		return Seller{}, ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `SELECT `+sellerColumns+` FROM sellers WHERE name_key = $1`, key)
	return scanSeller(row)
}

// List returns all sellers, active first.
func (r *Repository) List(ctx context.Context) ([]Seller, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sellerColumns+` FROM sellers ORDER BY active DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Seller, 0)
	for rows.Next() {
		var s Seller
		if err := rows.Scan(&s.ID, &s.Name, &s.NameKey, &s.ChatID, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// Upsert creates a seller or updates its display name, keyed on the
// normalized name. The chat link is never touched here.
func (r *Repository) Upsert(ctx context.Context, name string) (Seller, error) {
	display := strings.Join(strings.Fields(name), " ")
	key := NormalizeName(name)
	if key == "" {
		return Seller{}, errors.New("seller name is empty")
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO sellers (name, name_key)
		VALUES ($1, $2)
		ON CONFLICT (name_key) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		RETURNING `+sellerColumns,
		display, key,
	)
	return scanSeller(row)
}

// LinkChat attaches a notification channel identity to a seller.
func (r *Repository) LinkChat(ctx context.Context, id uuid.UUID, chatID string) (Seller, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sellers SET chat_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+sellerColumns,
		id, chatID,
	)
	return scanSeller(row)
}

// Deactivate marks a seller inactive. The row is kept for attribution.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) (Seller, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sellers SET active = false, updated_at = now()
		WHERE id = $1
		RETURNING `+sellerColumns,
		id,
	)
	return scanSeller(row)
}

func scanSeller(row pgx.Row) (Seller, error) {
	var s Seller
	err := row.Scan(&s.ID, &s.Name, &s.NameKey, &s.ChatID, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Seller{}, ErrNotFound
	}
	if err != nil {
		return Seller{}, err
	}
	return s, nil
}
