package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// CacheTTL is the default time-to-live for cached hub snapshots.
	CacheTTL = 300 * time.Second

	// cachePrefix is the key prefix for cached hub documents in Valkey.
	cachePrefix = "hub"
)

func cacheKey(id uuid.UUID) string {
	return cachePrefix + ":" + id.String()
}

// CachedRepository layers a Valkey snapshot cache over another Repository.
// Every mutation invalidates the cached snapshot; cache failures are logged
// and treated as misses so Valkey outages degrade to direct reads.
type CachedRepository struct {
	inner Repository
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedRepository wraps inner with a Valkey-backed snapshot cache.
func NewCachedRepository(inner Repository, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &CachedRepository{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   logger.With().Str("component", "hubcache").Logger(),
	}
}

// Load returns the cached snapshot when present, otherwise reads through and
// populates the cache.
func (r *CachedRepository) Load(ctx context.Context, id uuid.UUID) (*Hub, error) {
	raw, err := r.rdb.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var h Hub
		if uErr := json.Unmarshal(raw, &h); uErr == nil {
			return &h, nil
		}
		// A corrupt entry is dropped and recomputed.
		_ = r.rdb.Del(ctx, cacheKey(id)).Err()
	} else if err != redis.Nil {
		r.log.Warn().Err(err).Stringer("hub_id", id).Msg("Hub cache get failed, falling through to store")
	}

	h, err := r.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if encoded, mErr := json.Marshal(h); mErr == nil {
		if sErr := r.rdb.Set(ctx, cacheKey(id), encoded, r.ttl).Err(); sErr != nil {
			r.log.Warn().Err(sErr).Stringer("hub_id", id).Msg("Hub cache set failed")
		}
	}
	return h, nil
}

// Save writes through to the inner repository and invalidates the snapshot.
func (r *CachedRepository) Save(ctx context.Context, h *Hub) error {
	if err := r.inner.Save(ctx, h); err != nil {
		return err
	}
	r.invalidate(ctx, h.ID)
	return nil
}

// Update delegates to the inner repository and invalidates the snapshot after
// a successful write.
func (r *CachedRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Hub) error) (*Hub, error) {
	h, err := r.inner.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return h, nil
}

// Delete removes the hub and its cached snapshot.
func (r *CachedRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedRepository) invalidate(ctx context.Context, id uuid.UUID) {
	if err := r.rdb.Del(ctx, cacheKey(id)).Err(); err != nil {
		r.log.Warn().Err(err).Stringer("hub_id", id).Msg("Hub cache invalidation failed")
	}
}
