// Package audit captures key workflow actions as events. Keep the event
// transport-agnostic so stores and sinks can fan out.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose, enabling
// different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: sealing,
	// rejection, deed issuance. Long retention, tamper-proof storage.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine workflow visibility: scheduling,
	// report filing, queue movement. Shorter retention, may be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic after each accepted transition (and
// for refused mutations worth tracing).
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	CaseID    string        `json:"case_id"`
	ActorID   string        `json:"actor_id,omitempty"`
	Action    string        `json:"action"`
	// Decision is "accepted" or "rejected" for the attempted action.
	Decision string `json:"decision"`
	// FromStatus/ToStatus trace the transition; equal values mark a
	// self-loop, empty ToStatus marks a refused action.
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// CaseAction names the auditable workflow actions.
type CaseAction string

const (
	EventCaseSubmitted CaseAction = "case_submitted"
	EventCaseAction    CaseAction = "case_action"
	EventCaseSealed    CaseAction = "case_sealed"
	EventCaseRejected  CaseAction = "case_rejected"
	EventDeedIssued    CaseAction = "deed_issued"
	EventChecklistSet  CaseAction = "checklist_item_set"
)

// eventCategories is the source of truth for category routing.
var eventCategories = map[CaseAction]EventCategory{
	EventCaseSubmitted: CategoryOperations,
	EventCaseAction:    CategoryOperations,
	EventCaseSealed:    CategoryCompliance,
	EventCaseRejected:  CategoryCompliance,
	EventDeedIssued:    CategoryCompliance,
	EventChecklistSet:  CategoryOperations,
}

// Category returns the routing category of an action, defaulting to
// operations for unknown actions.
func (a CaseAction) Category() EventCategory {
	if category, ok := eventCategories[a]; ok {
		return category
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCase(ctx context.Context, caseID string) ([]Event, error)
}
