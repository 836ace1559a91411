package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/pkg/platform/audit"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
	fail   bool
}

func (p *capturingPublisher) Publish(_ context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) published() []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audit.Event(nil), p.events...)
}

func startWorker(t *testing.T, store audit.Store, publisher Publisher, inbox chan audit.Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := New(store, publisher, inbox, slog.New(slog.DiscardHandler))
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWorker_AppendsToStore(t *testing.T) {
	store := audit.NewInMemoryStore()
	inbox := make(chan audit.Event, 8)
	startWorker(t, store, nil, inbox)

	inbox <- audit.Event{
		Category: audit.CategoryOperations,
		CaseID:   "case-1",
		Action:   string(audit.EventCaseAction),
		Decision: "accepted",
	}

	require.Eventually(t, func() bool {
		events, err := store.ListByCase(context.Background(), "case-1")
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_PublishesOnlyCompliance(t *testing.T) {
	store := audit.NewInMemoryStore()
	publisher := &capturingPublisher{}
	inbox := make(chan audit.Event, 8)
	startWorker(t, store, publisher, inbox)

	inbox <- audit.Event{
		Category: audit.CategoryOperations,
		CaseID:   "case-2",
		Action:   string(audit.EventCaseAction),
	}
	inbox <- audit.Event{
		Category: audit.CategoryCompliance,
		CaseID:   "case-2",
		Action:   string(audit.EventCaseSealed),
	}

	require.Eventually(t, func() bool {
		events, err := store.ListByCase(context.Background(), "case-2")
		return err == nil && len(events) == 2
	}, time.Second, 10*time.Millisecond)

	published := publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, string(audit.EventCaseSealed), published[0].Action)
}

func TestWorker_PublisherFailureStillStores(t *testing.T) {
	store := audit.NewInMemoryStore()
	publisher := &capturingPublisher{fail: true}
	inbox := make(chan audit.Event, 8)
	startWorker(t, store, publisher, inbox)

	inbox <- audit.Event{
		Category: audit.CategoryCompliance,
		CaseID:   "case-3",
		Action:   string(audit.EventCaseRejected),
	}

	require.Eventually(t, func() bool {
		events, err := store.ListByCase(context.Background(), "case-3")
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCategoryRouting(t *testing.T) {
	assert.Equal(t, audit.CategoryCompliance, audit.EventCaseSealed.Category())
	assert.Equal(t, audit.CategoryCompliance, audit.EventCaseRejected.Category())
	assert.Equal(t, audit.CategoryCompliance, audit.EventDeedIssued.Category())
	assert.Equal(t, audit.CategoryOperations, audit.EventCaseSubmitted.Category())
	assert.Equal(t, audit.CategoryOperations, audit.EventChecklistSet.Category())
	assert.Equal(t, audit.CategoryOperations, audit.CaseAction("unmapped").Category())
}
