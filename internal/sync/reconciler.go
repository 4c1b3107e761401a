// Package sync owns the poll cycle: fetching the external snapshot,
// reconciling it into the store, refreshing schedules, and dispatching due
// reminders.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	domainevents "leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	leadrepo "leadflow_backend/internal/leads/repository"
	remrepo "leadflow_backend/internal/reminders/repository"
	"leadflow_backend/internal/schedule"
	sellerrepo "leadflow_backend/internal/sellers/repository"
	"leadflow_backend/internal/source"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
	"leadflow_backend/platform/phone"
)

// ChangeKind classifies one external row against the stored lead.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeChanged   ChangeKind = "changed"
	ChangeUnchanged ChangeKind = "unchanged"
)

// Outcome summarizes one reconciliation pass.
type Outcome struct {
	Rows      int
	Created   int
	Changed   int
	Unchanged int
	Failed    int
}

// fieldWriter is the write-back slice of the source adapter.
type fieldWriter interface {
	WriteField(ctx context.Context, rowID, field, value string) error
}

type Reconciler struct {
	leads   *leadrepo.Repository
	sellers *sellerrepo.Repository
	tasks   *remrepo.Repository
	engine  *schedule.Engine
	writer  fieldWriter
	bus     events.Bus
	log     *logger.Logger
}

func NewReconciler(
	leads *leadrepo.Repository,
	sellers *sellerrepo.Repository,
	tasks *remrepo.Repository,
	engine *schedule.Engine,
	writer fieldWriter,
	bus events.Bus,
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		leads:   leads,
		sellers: sellers,
		tasks:   tasks,
		engine:  engine,
		writer:  writer,
		bus:     bus,
		log:     log,
	}
}

// Reconcile applies a full external snapshot. Each lead commits in its own
// transaction; a failing lead is logged and skipped so one bad row cannot
// poison the rest of the cycle.
func (r *Reconciler) Reconcile(ctx context.Context, rows []source.RawRow, now time.Time) (Outcome, error) {
	snapshot, err := r.leads.Snapshot(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load lead snapshot: %w", err)
	}
	sellersByKey, err := r.sellerIndex(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load sellers: %w", err)
	}

	outcome := Outcome{Rows: len(rows)}
	for _, row := range rows {
		prior, found := snapshot[row.ID]
		kind := classify(row, prior, found)
		metrics.LeadsReconciledTotal.WithLabelValues(string(kind)).Inc()
		if kind == ChangeUnchanged {
			outcome.Unchanged++
			continue
		}
		if err := r.applyRow(ctx, row, prior, found, sellersByKey, now); err != nil {
			outcome.Failed++
			r.log.WithLead(row.ID).Error("reconcile lead failed", "error", err)
			continue
		}
		if kind == ChangeNew {
			outcome.Created++
		} else {
			outcome.Changed++
		}
	}
	return outcome, nil
}

// classify decides whether a row needs applying. Comparison is field by
// field; Last_Update alone is not trusted since hand edits do not always
// bump it. An empty external status over a non-empty local one does not
// count as a status change, so the entry-transition write-back cannot
// ping-pong while the sheet still shows the old blank.
func classify(row source.RawRow, prior leadrepo.Lead, found bool) ChangeKind {
	if !found {
		return ChangeNew
	}
	if row.Name != prior.Name ||
		phone.NormalizeE164(row.Phone) != prior.Phone ||
		row.Seller != prior.SellerName ||
		row.Source != prior.Source ||
		row.Comment != prior.Comment ||
		row.FirstClassConfirmed != prior.FirstClassConfirmed {
		return ChangeChanged
	}
	if statusDiffers(row.Status, prior.StatusText) {
		return ChangeChanged
	}
	if !timePtrEqual(row.CreatedAt, prior.CreatedAt) ||
		!timePtrEqual(row.Call1At, prior.Call1At) ||
		!timePtrEqual(row.Call2At, prior.Call2At) ||
		!timePtrEqual(row.Call3At, prior.Call3At) ||
		!timePtrEqual(row.NextFollowupAt, prior.NextFollowupAt) ||
		!timePtrEqual(row.FirstClassAt, prior.FirstClassAt) {
		return ChangeChanged
	}
	return ChangeUnchanged
}

func statusDiffers(external, local string) bool {
	if external == "" && local != "" {
		return false
	}
	got, _ := domain.ParseStatus(external)
	have, _ := domain.ParseStatus(local)
	return got != have
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (r *Reconciler) applyRow(
	ctx context.Context,
	row source.RawRow,
	prior leadrepo.Lead,
	found bool,
	sellersByKey map[string]sellerrepo.Seller,
	now time.Time,
) error {
	params := r.buildParams(row, prior, found, sellersByKey)

	var (
		lead       leadrepo.Lead
		oldStatus  string
		newStatus  string
		regression bool
		writeBack  bool
	)

	err := r.leads.WithLeadTx(ctx, func(q leadrepo.Querier) error {
		var err error
		if found {
			oldStatus = prior.StatusText
			lead, err = r.leads.Update(ctx, q, prior.ID, params)
		} else {
			lead, err = r.leads.Create(ctx, q, params)
		}
		if err != nil {
			return err
		}

		newStatus = lead.StatusText
		if !found && row.Status == "" {
			// First sighting with a blank status enters the state machine
			// at the first call stage. The sheet gets the same value
			// written back after commit.
			newStatus = domain.StatusCall1Needed.String()
			writeBack = true
			if err := r.leads.SetStatusText(ctx, q, lead.ID, newStatus); err != nil {
				return err
			}
			lead.StatusText = newStatus
		}

		if statusChanged(oldStatus, newStatus, found) {
			old, _ := domain.ParseStatus(oldStatus)
			cur, _ := domain.ParseStatus(newStatus)
			regression = domain.IsRegression(old, cur)
			actor := leadrepo.ActorSync
			if _, err := r.leads.InsertTransition(ctx, q, lead.ID, oldStatus, newStatus, actor, regression); err != nil {
				return err
			}
		}

		return r.refreshSchedule(ctx, q, lead, now)
	})
	if err != nil {
		return err
	}

	if writeBack {
		if err := r.writer.WriteField(ctx, row.ID, source.FieldStatus, newStatus); err != nil {
			// Local state already committed; the external blank resolves on
			// a later cycle since blank never overwrites local.
			r.log.WithLead(row.ID).Warn("status write-back failed", "error", err)
		}
	}

	r.publish(ctx, lead, found, oldStatus, newStatus, regression)
	return nil
}

func statusChanged(oldStatus, newStatus string, found bool) bool {
	if !found {
		return true
	}
	return statusDiffers(newStatus, oldStatus) || statusDiffers(oldStatus, newStatus)
}

// refreshSchedule re-derives the task set inside the lead's transaction.
// Sent rows enter the diff so a delivered reminder is never recreated; only
// open rows are supersede candidates, so the ID map covers just those (the
// partial unique index guarantees at most one open row per key).
func (r *Reconciler) refreshSchedule(ctx context.Context, q leadrepo.Querier, lead leadrepo.Lead, now time.Time) error {
	tasks, err := r.tasks.ListCurrent(ctx, q, lead.ID)
	if err != nil {
		return err
	}

	type key struct {
		kind  schedule.Kind
		level int
	}
	current := make([]schedule.CurrentTask, 0, len(tasks))
	ids := make(map[key]uuid.UUID, len(tasks))
	for _, t := range tasks {
		current = append(current, schedule.CurrentTask{Kind: t.Kind, Level: t.Level, DueAt: t.DueAt, Sent: t.Sent})
		if !t.Sent {
			ids[key{t.Kind, t.Level}] = t.ID
		}
	}

	desired := r.engine.Derive(leadView(lead))
	create, supersede := schedule.Diff(current, desired, now)

	supersedeIDs := make([]uuid.UUID, 0, len(supersede))
	for _, t := range supersede {
		supersedeIDs = append(supersedeIDs, ids[key{t.Kind, t.Level}])
	}
	if err := r.tasks.SyncForLead(ctx, q, lead.ID, create, supersedeIDs); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.log.InvariantViolation("duplicate open reminder key for lead "+lead.ExternalID, err.Error())
		}
		return err
	}
	return nil
}

// leadView projects a stored lead onto the schedule engine's input.
func leadView(lead leadrepo.Lead) schedule.LeadView {
	status, _ := domain.ParseStatus(lead.StatusText)
	return schedule.LeadView{
		Status:              status,
		CreatedAt:           lead.CreatedAt,
		FirstSeenAt:         lead.FirstSeenAt,
		Call1At:             lead.Call1At,
		Call2At:             lead.Call2At,
		Call3At:             lead.Call3At,
		NextFollowupAt:      lead.NextFollowupAt,
		FirstClassAt:        lead.FirstClassAt,
		FirstClassConfirmed: lead.FirstClassConfirmed,
	}
}

func (r *Reconciler) buildParams(
	row source.RawRow,
	prior leadrepo.Lead,
	found bool,
	sellersByKey map[string]sellerrepo.Seller,
) leadrepo.UpsertParams {
	var sellerID *uuid.UUID
	if seller, ok := sellersByKey[sellerrepo.NormalizeName(row.Seller)]; ok {
		id := seller.ID
		sellerID = &id
	}

	statusText := row.Status
	if row.Status == "" && found && prior.StatusText != "" {
		statusText = prior.StatusText
	}

	return leadrepo.UpsertParams{
		ExternalID:          row.ID,
		Name:                row.Name,
		Phone:               phone.NormalizeE164(row.Phone),
		SellerID:            sellerID,
		SellerName:          row.Seller,
		Source:              row.Source,
		StatusText:          statusText,
		CreatedAt:           row.CreatedAt,
		Call1At:             row.Call1At,
		Call2At:             row.Call2At,
		Call3At:             row.Call3At,
		NextFollowupAt:      row.NextFollowupAt,
		FirstClassAt:        row.FirstClassAt,
		FirstClassConfirmed: row.FirstClassConfirmed,
		Comment:             row.Comment,
		LastExternalUpdate:  row.LastUpdate,
	}
}

func (r *Reconciler) sellerIndex(ctx context.Context) (map[string]sellerrepo.Seller, error) {
	sellers, err := r.sellers.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]sellerrepo.Seller, len(sellers))
	for _, s := range sellers {
		if s.Active {
			byKey[s.NameKey] = s
		}
	}
	return byKey, nil
}

func (r *Reconciler) publish(ctx context.Context, lead leadrepo.Lead, found bool, oldStatus, newStatus string, regression bool) {
	if r.bus == nil {
		return
	}
	if !found {
		r.bus.Publish(ctx, domainevents.LeadCreated{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     lead.ID,
			ExternalID: lead.ExternalID,
			Name:       lead.Name,
			Phone:      lead.Phone,
			SellerName: lead.SellerName,
			Source:     lead.Source,
			Status:     newStatus,
		})
		return
	}
	if statusDiffers(newStatus, oldStatus) || statusDiffers(oldStatus, newStatus) {
		r.bus.Publish(ctx, domainevents.LeadStatusChanged{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     lead.ID,
			ExternalID: lead.ExternalID,
			Name:       lead.Name,
			SellerName: lead.SellerName,
			OldStatus:  oldStatus,
			NewStatus:  newStatus,
			Regression: regression,
		})
	}
}
