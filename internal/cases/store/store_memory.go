package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"landregistry/internal/cases/models"
	"landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemory stores cases in memory for tests and development. Every read
// hands out a deep copy so callers can never mutate stored state behind the
// version check.
type InMemory struct {
	mu    sync.RWMutex
	cases map[domain.CaseID]*models.Case
}

// NewInMemory constructs an empty in-memory case store.
func NewInMemory() *InMemory {
	return &InMemory{cases: make(map[domain.CaseID]*models.Case)}
}

func (s *InMemory) Create(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return fmt.Errorf("case %s already exists: %w", c.ID, sentinel.ErrConflict)
	}
	s.cases[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.CaseID) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, sentinel.ErrNotFound)
	}
	return stored.Clone(), nil
}

func (s *InMemory) Update(_ context.Context, c *models.Case) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cases[c.ID]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", c.ID, sentinel.ErrNotFound)
	}
	if stored.Version != c.Version {
		return nil, fmt.Errorf("case %s version %d superseded by %d: %w",
			c.ID, c.Version, stored.Version, sentinel.ErrStale)
	}
	next := c.Clone()
	next.Version++
	s.cases[c.ID] = next
	return next.Clone(), nil
}

func (s *InMemory) ListByStatuses(_ context.Context, statuses []models.CaseStatus) ([]*models.Case, error) {
	wanted := make(map[models.CaseStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Case
	for _, c := range s.cases {
		if wanted[c.Status] {
			matched = append(matched, c.Clone())
		}
	}
	sortNewestFirst(matched)
	return matched, nil
}

func (s *InMemory) ListByInitiator(_ context.Context, initiator domain.ActorID) ([]*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Case
	for _, c := range s.cases {
		if c.Initiator == initiator {
			matched = append(matched, c.Clone())
		}
	}
	sortNewestFirst(matched)
	return matched, nil
}

func sortNewestFirst(cases []*models.Case) {
	sort.Slice(cases, func(i, j int) bool {
		if cases[i].CreatedAt.Equal(cases[j].CreatedAt) {
			return cases[i].ID.String() > cases[j].ID.String()
		}
		return cases[i].CreatedAt.After(cases[j].CreatedAt)
	})
}
