package notifier

import (
	"context"
	"errors"
	"fmt"

	domainevents "leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	sellerrepo "leadflow_backend/internal/sellers/repository"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
)

// sellerLookup resolves the assigned seller at send time, so a chat linked
// after the lead appeared still receives later notifications.
type sellerLookup interface {
	GetByName(ctx context.Context, name string) (sellerrepo.Seller, error)
}

// Courtesy pushes informational messages when leads appear or hit notable
// transitions: the assigned seller gets every one, the admin chats get a
// copy. These are fire-and-forget; they carry no delivery guarantee and
// never touch the reminder task table.
type Courtesy struct {
	channel    Channel
	sellers    sellerLookup
	adminChats []string
	log        *logger.Logger
}

func NewCourtesy(channel Channel, sellers sellerLookup, cfg Config, log *logger.Logger) *Courtesy {
	return &Courtesy{channel: channel, sellers: sellers, adminChats: cfg.GetAdminChatIDs(), log: log}
}

// Register subscribes the courtesy handlers on the bus.
func (c *Courtesy) Register(bus events.Bus) {
	bus.Subscribe(domainevents.LeadCreatedEvent, events.HandlerFunc(c.onLeadCreated))
	bus.Subscribe(domainevents.LeadStatusChangedEvent, events.HandlerFunc(c.onStatusChanged))
}

func (c *Courtesy) onLeadCreated(ctx context.Context, event events.Event) error {
	e, ok := event.(domainevents.LeadCreated)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	text := fmt.Sprintf("New lead: %s\nPhone: %s", e.Name, e.Phone)
	if e.SellerName != "" {
		text += "\nSeller: " + e.SellerName
	}
	if e.Source != "" {
		text += "\nSource: " + e.Source
	}
	c.notifySeller(ctx, e.SellerName, text)
	c.broadcast(ctx, text)
	return nil
}

// onStatusChanged notifies only on outcomes worth attention: terminal
// transitions and pipeline regressions. Routine forward movement would
// drown the chats.
func (c *Courtesy) onStatusChanged(ctx context.Context, event events.Event) error {
	e, ok := event.(domainevents.LeadStatusChanged)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	terminal := domain.Status(e.NewStatus).IsTerminal()
	if !terminal && !e.Regression {
		return nil
	}
	text := fmt.Sprintf("Lead %s: %s -> %s", e.Name, e.OldStatus, e.NewStatus)
	if e.Regression {
		text += "\nNote: status moved backwards."
	}
	if e.SellerName != "" {
		text += "\nSeller: " + e.SellerName
	}
	c.notifySeller(ctx, e.SellerName, text)
	c.broadcast(ctx, text)
	return nil
}

// notifySeller sends to the assigned seller's chat when one is linked. An
// unassigned, unknown, inactive, or unlinked seller just means no seller
// copy; the admin broadcast still goes out.
func (c *Courtesy) notifySeller(ctx context.Context, sellerName, text string) {
	if sellerName == "" {
		return
	}
	seller, err := c.sellers.GetByName(ctx, sellerName)
	if err != nil {
		if !errors.Is(err, sellerrepo.ErrNotFound) {
			c.log.Warn("courtesy seller lookup failed", "seller", sellerName, "error", err)
		}
		return
	}
	if !seller.Active || seller.ChatID == nil || *seller.ChatID == "" {
		return
	}
	if err := c.channel.Send(ctx, *seller.ChatID, text); err != nil {
		c.log.Warn("courtesy notification failed", "chat", *seller.ChatID, "error", err)
	}
}

func (c *Courtesy) broadcast(ctx context.Context, text string) {
	for _, chat := range c.adminChats {
		if err := c.channel.Send(ctx, chat, text); err != nil {
			c.log.Warn("courtesy notification failed", "chat", chat, "error", err)
		}
	}
}
