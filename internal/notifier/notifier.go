// Package notifier delivers due reminder tasks through notification
// channels with bounded retries and an at-most-once guarantee per task.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"leadflow_backend/internal/reminders/repository"
	"leadflow_backend/internal/schedule"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
)

// ErrSellerNotLinked means the task's seller has no chat identity on file.
// It burns a delivery attempt like any channel failure, so a permanently
// unlinked seller surfaces as an exhausted task instead of looping forever.
var ErrSellerNotLinked = errors.New("seller has no linked chat")

// taskStore is the slice of the reminders repository the notifier uses.
type taskStore interface {
	ListDue(ctx context.Context, now time.Time, attemptCap int) ([]repository.DueTask, error)
	Deliver(ctx context.Context, taskID uuid.UUID, send func(ctx context.Context) error) (bool, error)
}

type Config interface {
	GetDeliveryMaxAttempts() int
	GetDeliveryConcurrency() int
	GetAdminChatIDs() []string
	GetAdminEmail() string
}

type Notifier struct {
	store       taskStore
	seller      Channel
	admin       Channel
	email       Channel
	adminChats  []string
	adminEmail  string
	maxAttempts int
	concurrency int
	log         *logger.Logger
}

// New wires a notifier. seller and admin are usually the same Telegram
// channel; email may be nil when SMTP is not configured.
func New(store taskStore, seller, admin, email Channel, cfg Config, log *logger.Logger) *Notifier {
	concurrency := cfg.GetDeliveryConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}
	return &Notifier{
		store:       store,
		seller:      seller,
		admin:       admin,
		email:       email,
		adminChats:  cfg.GetAdminChatIDs(),
		adminEmail:  cfg.GetAdminEmail(),
		maxAttempts: cfg.GetDeliveryMaxAttempts(),
		concurrency: concurrency,
		log:         log,
	}
}

// Dispatch sends every deliverable task and returns how many went out.
// Leads are processed concurrently up to the configured limit; tasks of one
// lead stay sequential so a seller reads them in stage order. A failed task
// never aborts the batch.
func (n *Notifier) Dispatch(ctx context.Context, now time.Time) (int, error) {
	due, err := n.store.ListDue(ctx, now, n.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("list due tasks: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	// ListDue orders by lead, so grouping is a single pass.
	var groups [][]repository.DueTask
	for _, task := range due {
		if len(groups) > 0 && groups[len(groups)-1][0].LeadID == task.LeadID {
			groups[len(groups)-1] = append(groups[len(groups)-1], task)
			continue
		}
		groups = append(groups, []repository.DueTask{task})
	}

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, task := range group {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if n.deliverOne(gctx, task) {
					sent.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(sent.Load()), err
	}
	return int(sent.Load()), nil
}

func (n *Notifier) deliverOne(ctx context.Context, task repository.DueTask) bool {
	text := renderMessage(task)
	delivered, err := n.store.Deliver(ctx, task.ID, func(ctx context.Context) error {
		return n.send(ctx, task, text)
	})
	if err != nil {
		metrics.DeliveryFailuresTotal.Inc()
		attempt := task.Attempts + 1
		n.log.DeliveryError(task.ID.String(), task.LeadExternalID, string(task.Kind), attempt, err)
		if attempt >= n.maxAttempts {
			n.log.DeliveryExhausted(task.ID.String(), task.LeadExternalID, string(task.Kind), attempt)
		}
		return false
	}
	if delivered {
		metrics.RemindersSentTotal.WithLabelValues(string(task.Kind)).Inc()
	}
	return delivered
}

// send routes one message. Escalations fan out to every admin chat and, when
// configured, an email copy; the email copy is best effort and never fails
// the delivery on its own.
func (n *Notifier) send(ctx context.Context, task repository.DueTask, text string) error {
	if schedule.AudienceFor(task.Kind, task.Level) == schedule.AudienceAdmin {
		if len(n.adminChats) == 0 {
			return errors.New("no admin chats configured")
		}
		for _, chat := range n.adminChats {
			if err := n.admin.Send(ctx, chat, text); err != nil {
				return err
			}
		}
		if n.email != nil && n.adminEmail != "" {
			if err := n.email.Send(ctx, n.adminEmail, text); err != nil {
				n.log.Warn("escalation email copy failed", "error", err)
			}
		}
		return nil
	}

	if task.SellerChatID == nil || *task.SellerChatID == "" {
		return fmt.Errorf("%w: %q", ErrSellerNotLinked, task.SellerName)
	}
	return n.seller.Send(ctx, *task.SellerChatID, text)
}
