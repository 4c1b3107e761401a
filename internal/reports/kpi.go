package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/leads/domain"
)

// Report is one aggregated KPI window.
type Report struct {
	From            time.Time
	To              time.Time
	NewLeads        int
	Sold            int
	Lost            int
	StatusCounts    []StatusCount
	Sellers         []SellerStats
	ExhaustedTasks  int
	UnlinkedSellers int
}

type StatusCount struct {
	Status string
	Count  int
}

type SellerStats struct {
	Name     string
	NewLeads int
	Sold     int
}

// KPIRepository reads the aggregates straight off the store. The attempt
// cap matches the notifier's, so "exhausted" means the same thing in the
// report and in dispatch.
type KPIRepository struct {
	pool       *pgxpool.Pool
	attemptCap int
}

func NewKPIRepository(pool *pgxpool.Pool, attemptCap int) *KPIRepository {
	return &KPIRepository{pool: pool, attemptCap: attemptCap}
}

func (r *KPIRepository) Collect(ctx context.Context, from, to time.Time) (Report, error) {
	report := Report{From: from, To: to}

	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM leads WHERE first_seen_at >= $1 AND first_seen_at < $2),
			(SELECT count(*) FROM lead_transitions WHERE new_status = $3 AND occurred_at >= $1 AND occurred_at < $2),
			(SELECT count(*) FROM lead_transitions WHERE new_status = $4 AND occurred_at >= $1 AND occurred_at < $2),
			(SELECT count(*) FROM reminder_tasks WHERE NOT sent AND NOT superseded AND attempts >= $5),
			(SELECT count(DISTINCT seller_name) FROM leads WHERE seller_id IS NULL AND seller_name <> '')
	`, from, to, domain.StatusSold.String(), domain.StatusLost.String(), r.attemptCap).Scan(
		&report.NewLeads, &report.Sold, &report.Lost, &report.ExhaustedTasks, &report.UnlinkedSellers,
	)
	if err != nil {
		return Report{}, fmt.Errorf("collect totals: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status_text, count(*) FROM leads
		GROUP BY status_text ORDER BY count(*) DESC, status_text
	`)
	if err != nil {
		return Report{}, fmt.Errorf("collect status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return Report{}, err
		}
		report.StatusCounts = append(report.StatusCounts, sc)
	}
	if rows.Err() != nil {
		return Report{}, rows.Err()
	}

	sellerRows, err := r.pool.Query(ctx, `
		SELECT l.seller_name,
			count(*) FILTER (WHERE l.first_seen_at >= $1 AND l.first_seen_at < $2),
			count(DISTINCT t.lead_id) FILTER (WHERE t.new_status = $3 AND t.occurred_at >= $1 AND t.occurred_at < $2)
		FROM leads l
		LEFT JOIN lead_transitions t ON t.lead_id = l.id
		WHERE l.seller_name <> ''
		GROUP BY l.seller_name
		ORDER BY l.seller_name
	`, from, to, domain.StatusSold.String())
	if err != nil {
		return Report{}, fmt.Errorf("collect seller stats: %w", err)
	}
	defer sellerRows.Close()
	for sellerRows.Next() {
		var ss SellerStats
		if err := sellerRows.Scan(&ss.Name, &ss.NewLeads, &ss.Sold); err != nil {
			return Report{}, err
		}
		report.Sellers = append(report.Sellers, ss)
	}
	return report, sellerRows.Err()
}

// FormatReport renders one report as the plain-text message the admin
// chats receive.
func FormatReport(title string, report Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s - %s)\n", title,
		report.From.UTC().Format("2006-01-02"), report.To.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "New leads: %d\n", report.NewLeads)
	fmt.Fprintf(&b, "Sold: %d, Lost: %d\n", report.Sold, report.Lost)

	if len(report.StatusCounts) > 0 {
		b.WriteString("\nPipeline:\n")
		for _, sc := range report.StatusCounts {
			status := sc.Status
			if status == "" {
				status = "(blank)"
			}
			fmt.Fprintf(&b, "  %s: %d\n", status, sc.Count)
		}
	}

	if len(report.Sellers) > 0 {
		b.WriteString("\nSellers:\n")
		for _, ss := range report.Sellers {
			fmt.Fprintf(&b, "  %s: %d new, %d sold\n", ss.Name, ss.NewLeads, ss.Sold)
		}
	}

	if report.ExhaustedTasks > 0 {
		fmt.Fprintf(&b, "\nAttention: %d reminder(s) exhausted delivery retries.\n", report.ExhaustedTasks)
	}
	if report.UnlinkedSellers > 0 {
		fmt.Fprintf(&b, "Attention: %d seller name(s) without a linked account.\n", report.UnlinkedSellers)
	}
	return strings.TrimRight(b.String(), "\n")
}
