package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	leadrepo "leadflow_backend/internal/leads/repository"
	remrepo "leadflow_backend/internal/reminders/repository"
	sellerrepo "leadflow_backend/internal/sellers/repository"
	syncpkg "leadflow_backend/internal/sync"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid seller id"
)

// StatusReader exposes the aggregate sync record.
type StatusReader interface {
	Get(ctx context.Context) (syncpkg.Status, error)
}

// ForceSyncer queues an out-of-band poll cycle.
type ForceSyncer interface {
	ForceSync() bool
}

// SellerStore is the admin-facing slice of the seller repository.
type SellerStore interface {
	List(ctx context.Context) ([]sellerrepo.Seller, error)
	Upsert(ctx context.Context, name string) (sellerrepo.Seller, error)
	LinkChat(ctx context.Context, id uuid.UUID, chatID string) (sellerrepo.Seller, error)
	Deactivate(ctx context.Context, id uuid.UUID) (sellerrepo.Seller, error)
}

// LeadStore is the read-only slice of the lead repository the audit
// endpoint needs.
type LeadStore interface {
	GetByExternalID(ctx context.Context, externalID string) (leadrepo.Lead, error)
	ListTransitions(ctx context.Context, leadID uuid.UUID) ([]leadrepo.Transition, error)
}

// TaskReader exposes reminders whose delivery retries ran out.
type TaskReader interface {
	ListExhausted(ctx context.Context, attemptCap int) ([]remrepo.Task, error)
}

// Handler serves the admin surface.
type Handler struct {
	status     StatusReader
	syncer     ForceSyncer
	sellers    SellerStore
	leads      LeadStore
	tasks      TaskReader
	attemptCap int
	val        *validator.Validator
}

func NewHandler(status StatusReader, syncer ForceSyncer, sellers SellerStore, leads LeadStore, tasks TaskReader, attemptCap int, val *validator.Validator) *Handler {
	return &Handler{
		status:     status,
		syncer:     syncer,
		sellers:    sellers,
		leads:      leads,
		tasks:      tasks,
		attemptCap: attemptCap,
		val:        val,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/sync/status", h.GetSyncStatus)
	r.POST("/sync/run", h.RunSync)
	r.GET("/sellers", h.ListSellers)
	r.POST("/sellers", h.UpsertSeller)
	r.POST("/sellers/:id/link", h.LinkSellerChat)
	r.POST("/sellers/:id/deactivate", h.DeactivateSeller)
	r.GET("/leads/:external_id/transitions", h.ListLeadTransitions)
	r.GET("/reminders/exhausted", h.ListExhaustedReminders)
}

// GetSyncStatus returns the aggregate record of the last poll cycles.
// GET /api/v1/sync/status
func (h *Handler) GetSyncStatus(c *gin.Context) {
	status, err := h.status.Get(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, status)
}

// RunSync queues a force-sync. 202 either way; "queued" says whether this
// request created the pending cycle or joined an existing one.
// POST /api/v1/sync/run
func (h *Handler) RunSync(c *gin.Context) {
	queued := h.syncer.ForceSync()
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

type sellerResponse struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	ChatID *string `json:"chat_id"`
	Active bool    `json:"active"`
}

func toSellerResponse(s sellerrepo.Seller) sellerResponse {
	return sellerResponse{ID: s.ID.String(), Name: s.Name, ChatID: s.ChatID, Active: s.Active}
}

// ListSellers returns all sellers, active first.
// GET /api/v1/sellers
func (h *Handler) ListSellers(c *gin.Context) {
	sellers, err := h.sellers.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]sellerResponse, 0, len(sellers))
	for _, s := range sellers {
		out = append(out, toSellerResponse(s))
	}
	httpkit.OK(c, out)
}

type upsertSellerRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

// UpsertSeller creates or renames a seller, keyed on the normalized name.
// POST /api/v1/sellers
func (h *Handler) UpsertSeller(c *gin.Context) {
	var req upsertSellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	seller, err := h.sellers.Upsert(c.Request.Context(), req.Name)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toSellerResponse(seller))
}

type linkChatRequest struct {
	ChatID string `json:"chat_id" validate:"required,max=64"`
}

// LinkSellerChat attaches a Telegram chat identity to a seller.
// POST /api/v1/sellers/:id/link
func (h *Handler) LinkSellerChat(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID)
		return
	}

	var req linkChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	seller, err := h.sellers.LinkChat(c.Request.Context(), id, req.ChatID)
	if httpkit.HandleError(c, sellerErr(err)) {
		return
	}
	httpkit.OK(c, toSellerResponse(seller))
}

// DeactivateSeller marks a seller inactive.
// POST /api/v1/sellers/:id/deactivate
func (h *Handler) DeactivateSeller(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID)
		return
	}

	seller, err := h.sellers.Deactivate(c.Request.Context(), id)
	if httpkit.HandleError(c, sellerErr(err)) {
		return
	}
	httpkit.OK(c, toSellerResponse(seller))
}

// sellerErr maps the repository's not-found sentinel to the typed domain
// error so httpkit answers 404 instead of the generic 400.
func sellerErr(err error) error {
	if errors.Is(err, sellerrepo.ErrNotFound) {
		return apperr.NotFound("seller not found")
	}
	return err
}

type transitionResponse struct {
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Actor      string    `json:"actor"`
	Regression bool      `json:"regression"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ListLeadTransitions returns a lead's status audit trail, oldest first.
// GET /api/v1/leads/:external_id/transitions
func (h *Handler) ListLeadTransitions(c *gin.Context) {
	lead, err := h.leads.GetByExternalID(c.Request.Context(), c.Param("external_id"))
	if errors.Is(err, leadrepo.ErrNotFound) {
		err = apperr.NotFound("lead not found")
	}
	if httpkit.HandleError(c, err) {
		return
	}

	transitions, err := h.leads.ListTransitions(c.Request.Context(), lead.ID)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transitionResponse, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, transitionResponse{
			OldStatus:  t.OldStatus,
			NewStatus:  t.NewStatus,
			Actor:      t.Actor,
			Regression: t.Regression,
			OccurredAt: t.OccurredAt,
		})
	}
	httpkit.OK(c, out)
}

type exhaustedTaskResponse struct {
	ID       string    `json:"id"`
	LeadID   string    `json:"lead_id"`
	Kind     string    `json:"kind"`
	Level    int       `json:"level"`
	DueAt    time.Time `json:"due_at"`
	Attempts int       `json:"attempts"`
}

// ListExhaustedReminders returns the open reminders whose delivery retries
// ran out. They stay listed until a human intervenes.
// GET /api/v1/reminders/exhausted
func (h *Handler) ListExhaustedReminders(c *gin.Context) {
	tasks, err := h.tasks.ListExhausted(c.Request.Context(), h.attemptCap)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]exhaustedTaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, exhaustedTaskResponse{
			ID:       t.ID.String(),
			LeadID:   t.LeadID.String(),
			Kind:     string(t.Kind),
			Level:    t.Level,
			DueAt:    t.DueAt,
			Attempts: t.Attempts,
		})
	}
	httpkit.OK(c, out)
}
