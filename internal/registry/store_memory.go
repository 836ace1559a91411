package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemoryParcelStore keeps parcels in memory for tests and development.
type InMemoryParcelStore struct {
	mu      sync.RWMutex
	parcels map[domain.ParcelID]Parcel
}

// NewInMemoryParcelStore constructs an empty in-memory parcel store.
func NewInMemoryParcelStore() *InMemoryParcelStore {
	return &InMemoryParcelStore{parcels: make(map[domain.ParcelID]Parcel)}
}

func (s *InMemoryParcelStore) Save(_ context.Context, parcel Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.parcels {
		if id != parcel.ID && strings.EqualFold(existing.ParcelNumber, parcel.ParcelNumber) {
			return fmt.Errorf("parcel number %q already registered: %w", parcel.ParcelNumber, sentinel.ErrConflict)
		}
	}
	s.parcels[parcel.ID] = parcel
	return nil
}

func (s *InMemoryParcelStore) FindByID(_ context.Context, id domain.ParcelID) (Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parcel, ok := s.parcels[id]
	if !ok {
		return Parcel{}, fmt.Errorf("parcel %s: %w", id, sentinel.ErrNotFound)
	}
	return parcel, nil
}

func (s *InMemoryParcelStore) ListByOwner(_ context.Context, owner domain.ActorID) ([]Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Parcel
	for _, parcel := range s.parcels {
		if parcel.Owner == owner {
			matched = append(matched, parcel)
		}
	}
	sortParcels(matched)
	return matched, nil
}

func (s *InMemoryParcelStore) Search(_ context.Context, query string) ([]Parcel, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Parcel
	for _, parcel := range s.parcels {
		if strings.Contains(strings.ToLower(parcel.ParcelNumber), needle) ||
			strings.Contains(strings.ToLower(parcel.Locality), needle) {
			matched = append(matched, parcel)
		}
	}
	sortParcels(matched)
	return matched, nil
}

func sortParcels(parcels []Parcel) {
	sort.Slice(parcels, func(i, j int) bool {
		return parcels[i].ParcelNumber < parcels[j].ParcelNumber
	})
}

// InMemoryDeedStore keeps deeds in memory for tests and development.
type InMemoryDeedStore struct {
	mu    sync.RWMutex
	deeds map[domain.DeedID]Deed
}

// NewInMemoryDeedStore constructs an empty in-memory deed store.
func NewInMemoryDeedStore() *InMemoryDeedStore {
	return &InMemoryDeedStore{deeds: make(map[domain.DeedID]Deed)}
}

func (s *InMemoryDeedStore) Save(_ context.Context, deed Deed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deeds[deed.ID] = deed
	return nil
}

func (s *InMemoryDeedStore) FindByID(_ context.Context, id domain.DeedID) (Deed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deed, ok := s.deeds[id]
	if !ok {
		return Deed{}, fmt.Errorf("deed %s: %w", id, sentinel.ErrNotFound)
	}
	return deed, nil
}

func (s *InMemoryDeedStore) ListByHolder(_ context.Context, holder domain.ActorID) ([]Deed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Deed
	for _, deed := range s.deeds {
		if deed.Holder == holder {
			matched = append(matched, deed)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].DeedNumber < matched[j].DeedNumber
	})
	return matched, nil
}
