package service

import (
	"sync"

	"landregistry/pkg/domain"
)

// caseLocks serializes transitions per case id. Optimistic versioning in
// the store already rejects lost updates; the lock keeps two near
// simultaneous actors from both paying the full validate cost before one of
// them loses, and gives the single-writer guarantee per case.
type caseLocks struct {
	mu    sync.Mutex
	locks map[domain.CaseID]*caseLock
}

type caseLock struct {
	mu   sync.Mutex
	refs int
}

func newCaseLocks() *caseLocks {
	return &caseLocks{locks: make(map[domain.CaseID]*caseLock)}
}

// lock acquires the per-case mutex and returns its release func. Entries
// are reference counted and removed when the last holder releases, so the
// map does not grow with the case table.
func (l *caseLocks) lock(id domain.CaseID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &caseLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
