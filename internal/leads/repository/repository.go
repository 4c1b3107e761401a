package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so repository
// methods can run standalone or inside a per-lead transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Lead struct {
	ID                  uuid.UUID
	ExternalID          string
	Name                string
	Phone               string
	SellerID            *uuid.UUID
	SellerName          string
	Source              string
	StatusText          string
	CreatedAt           *time.Time
	Call1At             *time.Time
	Call2At             *time.Time
	Call3At             *time.Time
	NextFollowupAt      *time.Time
	FirstClassAt        *time.Time
	FirstClassConfirmed bool
	Comment             string
	LastExternalUpdate  *time.Time
	FirstSeenAt         time.Time
	UpdatedAt           time.Time
}

// UpsertParams carries every externally-owned field of a lead.
type UpsertParams struct {
	ExternalID          string
	Name                string
	Phone               string
	SellerID            *uuid.UUID
	SellerName          string
	Source              string
	StatusText          string
	CreatedAt           *time.Time
	Call1At             *time.Time
	Call2At             *time.Time
	Call3At             *time.Time
	NextFollowupAt      *time.Time
	FirstClassAt        *time.Time
	FirstClassConfirmed bool
	Comment             string
	LastExternalUpdate  *time.Time
}

const leadColumns = `id, external_id, name, phone, seller_id, seller_name, source, status_text,
	created_at, call1_at, call2_at, call3_at, next_followup_at, first_class_at,
	first_class_confirmed, comment, last_external_update, first_seen_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithLeadTx runs fn inside one transaction. The reconciler uses this to
// commit a lead's update, its audit entry and its schedule refresh
// atomically, one lead at a time.
func (r *Repository) WithLeadTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Snapshot loads every persisted lead keyed by external row ID. This is the
// reconciler's prior-state view for one poll cycle.
func (r *Repository) Snapshot(ctx context.Context) (map[string]Lead, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := make(map[string]Lead)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		snapshot[lead.ExternalID] = lead
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshot, nil
}

// GetByExternalID loads a single lead by its external row ID.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE external_id = $1`, externalID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// Create inserts a lead on first sighting.
func (r *Repository) Create(ctx context.Context, q Querier, params UpsertParams) (Lead, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO leads (
			external_id, name, phone, seller_id, seller_name, source, status_text,
			created_at, call1_at, call2_at, call3_at, next_followup_at, first_class_at,
			first_class_confirmed, comment, last_external_update
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+leadColumns,
		params.ExternalID, params.Name, params.Phone, params.SellerID, params.SellerName,
		params.Source, params.StatusText, params.CreatedAt, params.Call1At, params.Call2At,
		params.Call3At, params.NextFollowupAt, params.FirstClassAt, params.FirstClassConfirmed,
		params.Comment, params.LastExternalUpdate,
	)
	return scanLead(row)
}

// Update overwrites the externally-owned fields of an existing lead.
// External data always wins on conflict; only scheduling metadata is local.
func (r *Repository) Update(ctx context.Context, q Querier, id uuid.UUID, params UpsertParams) (Lead, error) {
	row := q.QueryRow(ctx, `
		UPDATE leads SET
			name = $2, phone = $3, seller_id = $4, seller_name = $5, source = $6,
			status_text = $7, created_at = $8, call1_at = $9, call2_at = $10,
			call3_at = $11, next_followup_at = $12, first_class_at = $13,
			first_class_confirmed = $14, comment = $15, last_external_update = $16,
			updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		id, params.Name, params.Phone, params.SellerID, params.SellerName, params.Source,
		params.StatusText, params.CreatedAt, params.Call1At, params.Call2At, params.Call3At,
		params.NextFollowupAt, params.FirstClassAt, params.FirstClassConfirmed,
		params.Comment, params.LastExternalUpdate,
	)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// SetStatusText updates only the status text, used for the entry transition
// before the write-back to the external store.
func (r *Repository) SetStatusText(ctx context.Context, q Querier, id uuid.UUID, statusText string) error {
	tag, err := q.Exec(ctx,
		`UPDATE leads SET status_text = $2, updated_at = now() WHERE id = $1`,
		id, statusText,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.ExternalID, &lead.Name, &lead.Phone, &lead.SellerID,
		&lead.SellerName, &lead.Source, &lead.StatusText, &lead.CreatedAt,
		&lead.Call1At, &lead.Call2At, &lead.Call3At, &lead.NextFollowupAt,
		&lead.FirstClassAt, &lead.FirstClassConfirmed, &lead.Comment,
		&lead.LastExternalUpdate, &lead.FirstSeenAt, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}
