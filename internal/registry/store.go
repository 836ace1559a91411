package registry

import (
	"context"

	"landregistry/pkg/domain"
)

// ParcelStore persists parcels.
type ParcelStore interface {
	// Save inserts or replaces a parcel. Returns sentinel.ErrConflict when
	// the parcel number is already registered under a different id.
	Save(ctx context.Context, parcel Parcel) error
	FindByID(ctx context.Context, id domain.ParcelID) (Parcel, error)
	ListByOwner(ctx context.Context, owner domain.ActorID) ([]Parcel, error)
	// Search matches parcel number or locality, case-insensitive substring.
	Search(ctx context.Context, query string) ([]Parcel, error)
}

// DeedStore persists issued deeds.
type DeedStore interface {
	Save(ctx context.Context, deed Deed) error
	FindByID(ctx context.Context, id domain.DeedID) (Deed, error)
	ListByHolder(ctx context.Context, holder domain.ActorID) ([]Deed, error)
}
