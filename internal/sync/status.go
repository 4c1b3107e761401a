package sync

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the single aggregate record the admin surface reads. It exists
// even before the first cycle.
type Status struct {
	LastRunAt           *time.Time `json:"last_run_at"`
	LastSuccessAt       *time.Time `json:"last_success_at"`
	LastError           string     `json:"last_error"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RowCount            int        `json:"row_count"`
	LeadsCreated        int        `json:"leads_created"`
	LeadsChanged        int        `json:"leads_changed"`
	RemindersSent       int        `json:"reminders_sent"`
	ExhaustedTasks      int        `json:"exhausted_tasks"`
}

// StatusRepository persists the one-row sync_status table.
type StatusRepository struct {
	pool *pgxpool.Pool
}

func NewStatusRepository(pool *pgxpool.Pool) *StatusRepository {
	return &StatusRepository{pool: pool}
}

// RecordSuccess overwrites the record after a clean cycle and resets the
// failure streak.
func (r *StatusRepository) RecordSuccess(ctx context.Context, at time.Time, rows, created, changed, sent, exhausted int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_status SET
			last_run_at = $1, last_success_at = $1, last_error = '',
			consecutive_failures = 0, row_count = $2, leads_created = $3,
			leads_changed = $4, reminders_sent = $5, exhausted_tasks = $6
		WHERE id = 1
	`, at, rows, created, changed, sent, exhausted)
	return err
}

// RecordFailure stamps the run, keeps the last success untouched and
// increments the streak.
func (r *StatusRepository) RecordFailure(ctx context.Context, at time.Time, cause error) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_status SET
			last_run_at = $1, last_error = $2,
			consecutive_failures = consecutive_failures + 1
		WHERE id = 1
	`, at, cause.Error())
	return err
}

func (r *StatusRepository) Get(ctx context.Context) (Status, error) {
	var s Status
	err := r.pool.QueryRow(ctx, `
		SELECT last_run_at, last_success_at, last_error, consecutive_failures,
			row_count, leads_created, leads_changed, reminders_sent, exhausted_tasks
		FROM sync_status WHERE id = 1
	`).Scan(
		&s.LastRunAt, &s.LastSuccessAt, &s.LastError, &s.ConsecutiveFailures,
		&s.RowCount, &s.LeadsCreated, &s.LeadsChanged, &s.RemindersSent, &s.ExhaustedTasks,
	)
	return s, err
}
