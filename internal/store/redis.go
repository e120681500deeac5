package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradebook/pnl-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache for the hot read paths: fills per asset group and
// realized PnL events per owner. Writes go to the primary store and
// invalidate the affected keys; reads check Redis first then fall back
// to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertFill(ctx context.Context, f *model.Fill) error {
	if err := s.primary.InsertFill(ctx, f); err != nil {
		return err
	}
	s.rdb.Del(ctx, fillsKey(f.Owner, f.Asset))
	return nil
}

func (s *CachedStore) BulkInsertFills(ctx context.Context, fills []*model.Fill) (int, int, error) {
	inserted, duplicates, err := s.primary.BulkInsertFills(ctx, fills)
	if err != nil {
		return inserted, duplicates, err
	}
	seen := make(map[string]bool)
	for _, f := range fills {
		key := fillsKey(f.Owner, f.Asset)
		if !seen[key] {
			seen[key] = true
			s.rdb.Del(ctx, key)
		}
	}
	return inserted, duplicates, nil
}

func (s *CachedStore) ApplyMatchUpdates(ctx context.Context, owner, asset string, updates []FillUpdate) error {
	if err := s.primary.ApplyMatchUpdates(ctx, owner, asset, updates); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, fillsKey(owner, asset))
	return nil
}

func (s *CachedStore) ReplaceRealizedEvents(ctx context.Context, owner, asset string, events []model.RealizedPnlEvent) error {
	if err := s.primary.ReplaceRealizedEvents(ctx, owner, asset, events); err != nil {
		return err
	}
	s.rdb.Del(ctx, eventsKey(owner))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) FillsByAsset(ctx context.Context, owner, asset string) ([]model.Fill, error) {
	data, err := s.rdb.Get(ctx, fillsKey(owner, asset)).Bytes()
	if err == nil {
		var fills []model.Fill
		if json.Unmarshal(data, &fills) == nil {
			return fills, nil
		}
	}

	// Cache miss: read from primary.
	fills, err := s.primary.FillsByAsset(ctx, owner, asset)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(fills); err == nil {
		s.rdb.Set(ctx, fillsKey(owner, asset), data, s.ttl)
	}
	return fills, nil
}

func (s *CachedStore) RealizedEventsByOwner(ctx context.Context, owner string) ([]model.RealizedPnlEvent, error) {
	data, err := s.rdb.Get(ctx, eventsKey(owner)).Bytes()
	if err == nil {
		var events []model.RealizedPnlEvent
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := s.primary.RealizedEventsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, eventsKey(owner), data, s.ttl)
	}
	return events, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAssets(ctx context.Context, owner string) ([]string, error) {
	return s.primary.ListAssets(ctx, owner)
}

func (s *CachedStore) OpenFillsByOwner(ctx context.Context, owner string) ([]model.Fill, error) {
	return s.primary.OpenFillsByOwner(ctx, owner)
}

// --- Cache keys ---

// cacheKey length-prefixes each part so owners or assets containing
// ":" can never alias another group's key.
func cacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, p := range parts {
		key += fmt.Sprintf(":%d:%s", len(p), p)
	}
	return key
}

func fillsKey(owner, asset string) string { return cacheKey("fills", owner, asset) }
func eventsKey(owner string) string       { return cacheKey("pnl_events", owner) }
