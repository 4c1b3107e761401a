package sync

import (
	"context"
	"time"

	domainevents "leadflow_backend/internal/events"
	"leadflow_backend/internal/source"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
)

// The runner drives everything from one goroutine, so cycles can never
// overlap. Force requests land in a buffered channel of one; a request
// arriving while one is already pending coalesces into it.

type fetcher interface {
	FetchAll(ctx context.Context) ([]source.RawRow, error)
}

type rowReconciler interface {
	Reconcile(ctx context.Context, rows []source.RawRow, now time.Time) (Outcome, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, now time.Time) (int, error)
}

type statusStore interface {
	RecordSuccess(ctx context.Context, at time.Time, rows, created, changed, sent, exhausted int) error
	RecordFailure(ctx context.Context, at time.Time, cause error) error
}

type exhaustedCounter interface {
	CountExhausted(ctx context.Context, attemptCap int) (int, error)
}

type Runner struct {
	fetcher    fetcher
	reconciler rowReconciler
	dispatcher dispatcher
	status     statusStore
	exhausted  exhaustedCounter
	bus        events.Bus
	log        *logger.Logger

	interval   time.Duration
	attemptCap int
	forceCh    chan struct{}
}

func NewRunner(
	fetcher fetcher,
	reconciler rowReconciler,
	dispatcher dispatcher,
	status statusStore,
	exhausted exhaustedCounter,
	bus events.Bus,
	log *logger.Logger,
	interval time.Duration,
	attemptCap int,
) *Runner {
	return &Runner{
		fetcher:    fetcher,
		reconciler: reconciler,
		dispatcher: dispatcher,
		status:     status,
		exhausted:  exhausted,
		bus:        bus,
		log:        log,
		interval:   interval,
		attemptCap: attemptCap,
		forceCh:    make(chan struct{}, 1),
	}
}

// ForceSync queues an out-of-band cycle. Returns false when one is already
// pending, in which case the pending cycle covers this request too.
func (r *Runner) ForceSync() bool {
	select {
	case r.forceCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is cancelled. One cycle runs immediately on start so
// a restart does not wait a full interval to catch up.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runCycle(ctx)
		case <-r.forceCh:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one fetch, reconcile, dispatch sequence. A fetch
// failure abandons the cycle before any store mutation; the stale local
// state stays authoritative until the source comes back.
func (r *Runner) runCycle(ctx context.Context) {
	start := time.Now()

	rows, err := r.fetcher.FetchAll(ctx)
	if err != nil {
		r.failCycle(ctx, start, err)
		return
	}
	metrics.SyncRowsFetched.Set(float64(len(rows)))

	outcome, err := r.reconciler.Reconcile(ctx, rows, time.Now())
	if err != nil {
		r.failCycle(ctx, start, err)
		return
	}

	sent, err := r.dispatcher.Dispatch(ctx, time.Now())
	if err != nil {
		r.failCycle(ctx, start, err)
		return
	}

	exhausted, err := r.exhausted.CountExhausted(ctx, r.attemptCap)
	if err != nil {
		r.log.DatabaseError("count_exhausted", err)
	}

	if err := r.status.RecordSuccess(ctx, time.Now(), outcome.Rows, outcome.Created, outcome.Changed, sent, exhausted); err != nil {
		r.log.DatabaseError("record_success", err)
	}

	duration := time.Since(start)
	metrics.SyncCyclesTotal.WithLabelValues("success").Inc()
	r.log.SyncCycle(outcome.Rows, outcome.Created, outcome.Changed, sent, float64(duration.Milliseconds()))
	if r.bus != nil {
		// Synchronous so the summary lands before the next cycle starts.
		if err := r.bus.PublishSync(ctx, domainevents.SyncCycleFinished{
			BaseEvent: events.NewBaseEvent(),
			Rows:      outcome.Rows,
			Created:   outcome.Created,
			Changed:   outcome.Changed,
			Unchanged: outcome.Unchanged,
			Sent:      sent,
			Duration:  duration,
		}); err != nil {
			r.log.Error("publish cycle summary failed", "error", err)
		}
	}
}

func (r *Runner) failCycle(ctx context.Context, start time.Time, cause error) {
	metrics.SyncCyclesTotal.WithLabelValues("failure").Inc()
	r.log.Error("sync cycle failed", "error", cause, "duration_ms", time.Since(start).Milliseconds())
	if err := r.status.RecordFailure(ctx, time.Now(), cause); err != nil {
		r.log.DatabaseError("record_failure", err)
	}
}
