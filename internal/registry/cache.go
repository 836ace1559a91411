package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"landregistry/pkg/domain"
)

// CachedParcelStore is a read-through Redis cache in front of a parcel
// store. Parcel lookups dominate the read path (every transfer and
// subdivision intake resolves its related parcel), while writes only happen
// on approval, so a short TTL keeps the cache honest without invalidation
// plumbing beyond delete-on-save.
type CachedParcelStore struct {
	inner  ParcelStore
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedParcelStore wraps a parcel store with a Redis read-through cache.
func NewCachedParcelStore(inner ParcelStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedParcelStore {
	return &CachedParcelStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func cacheKey(id domain.ParcelID) string {
	return "registry:parcel:" + id.String()
}

func (s *CachedParcelStore) FindByID(ctx context.Context, id domain.ParcelID) (Parcel, error) {
	key := cacheKey(id)
	cached, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var parcel Parcel
		if unmarshalErr := json.Unmarshal(cached, &parcel); unmarshalErr == nil {
			return parcel, nil
		}
		// Corrupt entry: fall through to the store and overwrite.
	} else if !errors.Is(err, redis.Nil) {
		s.logger.WarnContext(ctx, "parcel cache read failed", "error", err, "parcel_id", id.String())
	}

	// singleflight collapses concurrent misses for the same parcel into one
	// store round trip.
	result, err, _ := s.group.Do(key, func() (any, error) {
		parcel, err := s.inner.FindByID(ctx, id)
		if err != nil {
			return Parcel{}, err
		}
		s.fill(ctx, key, parcel)
		return parcel, nil
	})
	if err != nil {
		return Parcel{}, err
	}
	return result.(Parcel), nil
}

func (s *CachedParcelStore) fill(ctx context.Context, key string, parcel Parcel) {
	payload, err := json.Marshal(parcel)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "parcel cache fill failed", "error", err, "key", key)
	}
}

// Save writes through and drops the cached entry so the next read observes
// the new owner immediately rather than after TTL expiry.
func (s *CachedParcelStore) Save(ctx context.Context, parcel Parcel) error {
	if err := s.inner.Save(ctx, parcel); err != nil {
		return err
	}
	if err := s.client.Del(ctx, cacheKey(parcel.ID)).Err(); err != nil {
		s.logger.WarnContext(ctx, "parcel cache invalidation failed", "error", err, "parcel_id", parcel.ID.String())
	}
	return nil
}

func (s *CachedParcelStore) ListByOwner(ctx context.Context, owner domain.ActorID) ([]Parcel, error) {
	return s.inner.ListByOwner(ctx, owner)
}

func (s *CachedParcelStore) Search(ctx context.Context, query string) ([]Parcel, error) {
	return s.inner.Search(ctx, query)
}
