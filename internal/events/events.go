// Package events defines the domain events published by the engine.
// Infrastructure lives in platform/events; this package only names the
// payloads modules exchange.
package events

import (
	"time"

	"github.com/google/uuid"

	"leadflow_backend/platform/events"
)

const (
	LeadCreatedEvent       = "lead.created"
	LeadStatusChangedEvent = "lead.status_changed"
	SyncCycleFinishedEvent = "sync.cycle_finished"
)

// LeadCreated fires when the reconciler sees a row for the first time.
type LeadCreated struct {
	events.BaseEvent
	LeadID     uuid.UUID `json:"lead_id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	SellerName string    `json:"seller_name"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
}

func (LeadCreated) EventName() string { return LeadCreatedEvent }

// LeadStatusChanged fires on every externally-driven status transition.
type LeadStatusChanged struct {
	events.BaseEvent
	LeadID     uuid.UUID `json:"lead_id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	SellerName string    `json:"seller_name"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Regression bool      `json:"regression"`
}

func (LeadStatusChanged) EventName() string { return LeadStatusChangedEvent }

// SyncCycleFinished summarizes one completed poll cycle.
type SyncCycleFinished struct {
	events.BaseEvent
	Rows      int           `json:"rows"`
	Created   int           `json:"created"`
	Changed   int           `json:"changed"`
	Unchanged int           `json:"unchanged"`
	Sent      int           `json:"sent"`
	Duration  time.Duration `json:"duration"`
}

func (SyncCycleFinished) EventName() string { return SyncCycleFinishedEvent }
