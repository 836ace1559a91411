package worker

import (
	"context"
	"log/slog"

	"landregistry/pkg/platform/audit"
)

// Publisher ships events to an external sink (Kafka in production).
type Publisher interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Worker drains audit events from a channel into the store and, for
// compliance events, the external publisher. Emitters stay non-blocking;
// the worker absorbs sink latency.
type Worker struct {
	store     audit.Store
	publisher Publisher
	inbox     <-chan audit.Event
	logger    *slog.Logger
}

// New constructs a worker. publisher may be nil when no Kafka is wired
// (dev, tests); compliance events then only reach the store.
func New(store audit.Store, publisher Publisher, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, publisher: publisher, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is canceled. Sink failures are
// logged, not fatal: a broken audit sink must not take the workflow down.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to append audit event",
					"error", err,
					"case_id", event.CaseID,
					"action", event.Action,
				)
			}
			if w.publisher != nil && event.Category == audit.CategoryCompliance {
				if err := w.publisher.Publish(ctx, event); err != nil {
					w.logger.ErrorContext(ctx, "failed to publish audit event",
						"error", err,
						"case_id", event.CaseID,
						"action", event.Action,
					)
				}
			}
		}
	}
}
