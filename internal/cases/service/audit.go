package service

import (
	"context"
	"log/slog"

	"landregistry/internal/cases/models"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/requestcontext"
)

// auditEmitter pushes events onto the worker's inbox without ever blocking
// a transition. A full inbox drops the event and logs it; the case store
// stays the source of truth.
type auditEmitter struct {
	sink   chan<- audit.Event
	logger *slog.Logger
}

func newAuditEmitter(logger *slog.Logger) *auditEmitter {
	return &auditEmitter{logger: logger}
}

func (e *auditEmitter) emit(ctx context.Context, event audit.Event) {
	if e.sink == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	select {
	case e.sink <- event:
	default:
		e.logger.WarnContext(ctx, "audit inbox full, event dropped",
			"case_id", event.CaseID,
			"action", event.Action,
		)
	}
}

// emitTransition records an accepted transition, promoting seals and
// rejections to their compliance-grade event names.
func (e *auditEmitter) emitTransition(ctx context.Context, actor requestcontext.Actor, from models.CaseStatus, c *models.Case, payload models.ActionPayload) {
	name := audit.EventCaseAction
	switch c.Status {
	case models.StatusApproved:
		name = audit.EventCaseSealed
	case models.StatusRejected:
		name = audit.EventCaseRejected
	}
	e.emit(ctx, audit.Event{
		Category:   name.Category(),
		Timestamp:  c.UpdatedAt,
		CaseID:     c.ID.String(),
		ActorID:    actor.ID,
		Action:     string(name),
		Decision:   "accepted",
		FromStatus: string(from),
		ToStatus:   string(c.Status),
		Reason:     payload.Reason,
	})
	if c.Status == models.StatusApproved {
		e.emit(ctx, audit.Event{
			Category:  audit.EventDeedIssued.Category(),
			Timestamp: c.UpdatedAt,
			CaseID:    c.ID.String(),
			ActorID:   actor.ID,
			Action:    string(audit.EventDeedIssued),
			Decision:  "accepted",
			ToStatus:  string(c.Status),
			Reason:    c.Data.DeedNumber,
		})
	}
}
