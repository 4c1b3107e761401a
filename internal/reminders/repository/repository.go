package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/schedule"
)

var ErrTaskNotFound = errors.New("reminder task not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Task is one persisted reminder. A partial unique index on
// (lead_id, kind, level) over open rows enforces the at-most-one-open
// invariant at the database level.
type Task struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	Kind       schedule.Kind
	Level      int
	DueAt      time.Time
	Sent       bool
	SentAt     *time.Time
	Superseded bool
	Attempts   int
	CreatedAt  time.Time
}

// DueTask joins a due reminder with the lead and seller context the
// notifier needs to render and route the message.
type DueTask struct {
	Task
	LeadExternalID string
	LeadName       string
	LeadPhone      string
	LeadStatus     string
	LeadComment    string
	FirstClassAt   *time.Time
	SellerName     string
	SellerChatID   *string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCurrent returns the not-superseded tasks of one lead, sent rows
// included. The schedule diff needs the sent rows: a delivered reminder
// satisfies its key, so it must not be recreated on the next refresh.
func (r *Repository) ListCurrent(ctx context.Context, q Querier, leadID uuid.UUID) ([]Task, error) {
	rows, err := q.Query(ctx, `
		SELECT id, lead_id, kind, level, due_at, sent, sent_at, superseded, attempts, created_at
		FROM reminder_tasks
		WHERE lead_id = $1 AND NOT superseded
		ORDER BY due_at, level
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// SyncForLead applies a schedule diff inside the caller's transaction.
// Superseded rows stay on record for the audit trail; creations rely on the
// partial unique index to reject a duplicate open key, which would mean the
// diff was computed against a stale open set.
func (r *Repository) SyncForLead(ctx context.Context, q Querier, leadID uuid.UUID, create []schedule.TaskSpec, supersede []uuid.UUID) error {
	for _, id := range supersede {
		tag, err := q.Exec(ctx, `
			UPDATE reminder_tasks SET superseded = true
			WHERE id = $1 AND NOT sent AND NOT superseded
		`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrTaskNotFound
		}
	}
	for _, spec := range create {
		_, err := q.Exec(ctx, `
			INSERT INTO reminder_tasks (lead_id, kind, level, due_at)
			VALUES ($1, $2, $3, $4)
		`, leadID, string(spec.Kind), spec.Level, spec.DueAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListDue returns deliverable tasks: due, open, and under the attempt cap.
// Ordering is per lead then by level so escalations of one lead go out in
// stage order within a cycle.
func (r *Repository) ListDue(ctx context.Context, now time.Time, attemptCap int) ([]DueTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.lead_id, t.kind, t.level, t.due_at, t.sent, t.sent_at,
			t.superseded, t.attempts, t.created_at,
			l.external_id, l.name, l.phone, l.status_text, l.comment,
			l.first_class_at, l.seller_name, s.chat_id
		FROM reminder_tasks t
		JOIN leads l ON l.id = t.lead_id
		LEFT JOIN sellers s ON s.id = l.seller_id
		WHERE t.due_at <= $1 AND NOT t.sent AND NOT t.superseded AND t.attempts < $2
		ORDER BY t.lead_id, t.due_at, t.level
	`, now, attemptCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueTask
	for rows.Next() {
		var d DueTask
		if err := rows.Scan(
			&d.ID, &d.LeadID, &d.Kind, &d.Level, &d.DueAt, &d.Sent, &d.SentAt,
			&d.Superseded, &d.Attempts, &d.CreatedAt,
			&d.LeadExternalID, &d.LeadName, &d.LeadPhone, &d.LeadStatus, &d.LeadComment,
			&d.FirstClassAt, &d.SellerName, &d.SellerChatID,
		); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// Deliver runs send under a row lock and flips the sent flag in the same
// transaction. A row already sent, superseded, or locked by a concurrent
// cycle is skipped. On send failure the attempt counter is committed and
// the error returned; the task stays open for the next cycle.
func (r *Repository) Deliver(ctx context.Context, taskID uuid.UUID, send func(ctx context.Context) error) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var attempts int
	err = tx.QueryRow(ctx, `
		SELECT attempts FROM reminder_tasks
		WHERE id = $1 AND NOT sent AND NOT superseded
		FOR UPDATE SKIP LOCKED
	`, taskID).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, tx.Commit(ctx)
	}
	if err != nil {
		return false, err
	}

	if sendErr := send(ctx); sendErr != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE reminder_tasks SET attempts = attempts + 1 WHERE id = $1`, taskID,
		); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		return false, sendErr
	}

	if _, err := tx.Exec(ctx, `
		UPDATE reminder_tasks
		SET sent = true, sent_at = now(), attempts = attempts + 1
		WHERE id = $1
	`, taskID); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// ListExhausted returns open tasks whose retries ran out. They are never
// deleted; the sync status surface reports them until a human intervenes.
func (r *Repository) ListExhausted(ctx context.Context, attemptCap int) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, kind, level, due_at, sent, sent_at, superseded, attempts, created_at
		FROM reminder_tasks
		WHERE NOT sent AND NOT superseded AND attempts >= $1
		ORDER BY due_at
	`, attemptCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// CountExhausted is the cheap form of ListExhausted for the status record.
func (r *Repository) CountExhausted(ctx context.Context, attemptCap int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM reminder_tasks
		WHERE NOT sent AND NOT superseded AND attempts >= $1
	`, attemptCap).Scan(&n)
	return n, err
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(
			&t.ID, &t.LeadID, &t.Kind, &t.Level, &t.DueAt, &t.Sent, &t.SentAt,
			&t.Superseded, &t.Attempts, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
