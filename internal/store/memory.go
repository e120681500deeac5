package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tradebook/pnl-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	fills  map[string]*model.Fill               // fill ID → fill
	events map[string][]model.RealizedPnlEvent  // owner|asset → events
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fills:  make(map[string]*model.Fill),
		events: make(map[string][]model.RealizedPnlEvent),
	}
}

func groupKey(owner, asset string) string {
	return owner + "|" + asset
}

// isDuplicate reports whether f collides with an existing fill under
// the uniqueness invariant.
func (s *MemoryStore) isDuplicate(f *model.Fill) bool {
	for _, existing := range s.fills {
		if existing.Owner == f.Owner &&
			existing.Asset == f.Asset &&
			existing.OrderTime.Equal(f.OrderTime) &&
			existing.OriginalQty.Equal(f.OriginalQty) &&
			existing.Fee.Equal(f.Fee) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) InsertFill(_ context.Context, f *model.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDuplicate(f) {
		return ErrDuplicateFill
	}

	// Store a copy to avoid external mutation.
	cp := *f
	s.fills[f.ID] = &cp
	return nil
}

func (s *MemoryStore) BulkInsertFills(ctx context.Context, fills []*model.Fill) (int, int, error) {
	var inserted, duplicates int
	for _, f := range fills {
		switch err := s.InsertFill(ctx, f); err {
		case nil:
			inserted++
		case ErrDuplicateFill:
			duplicates++
		default:
			return inserted, duplicates, err
		}
	}
	return inserted, duplicates, nil
}

func (s *MemoryStore) FillsByAsset(_ context.Context, owner, asset string) ([]model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fills []model.Fill
	for _, f := range s.fills {
		if f.Owner == owner && f.Asset == asset {
			fills = append(fills, *f)
		}
	}
	sortFills(fills)
	return fills, nil
}

// sortFills orders by execution time, breaking timestamp ties by ID so
// repeated reads return a deterministic order.
func sortFills(fills []model.Fill) {
	sort.Slice(fills, func(i, j int) bool {
		if !fills[i].OrderTime.Equal(fills[j].OrderTime) {
			return fills[i].OrderTime.Before(fills[j].OrderTime)
		}
		return fills[i].ID < fills[j].ID
	})
}

func (s *MemoryStore) ListAssets(_ context.Context, owner string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var assets []string
	for _, f := range s.fills {
		if f.Owner == owner && !seen[f.Asset] {
			seen[f.Asset] = true
			assets = append(assets, f.Asset)
		}
	}
	sort.Strings(assets)
	return assets, nil
}

func (s *MemoryStore) OpenFillsByOwner(_ context.Context, owner string) ([]model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fills []model.Fill
	for _, f := range s.fills {
		if f.Owner == owner && f.IsOpen {
			fills = append(fills, *f)
		}
	}
	sortFills(fills)
	return fills, nil
}

// ApplyMatchUpdates applies all updates or none: every target fill is
// validated before the first mutation.
func (s *MemoryStore) ApplyMatchUpdates(_ context.Context, owner, asset string, updates []FillUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		f, ok := s.fills[u.FillID]
		if !ok || f.Owner != owner || f.Asset != asset {
			return fmt.Errorf("store: fill %s not found in group %s/%s", u.FillID, owner, asset)
		}
	}
	for _, u := range updates {
		f := s.fills[u.FillID]
		f.RemainingQty = u.RemainingQty
		f.MatchState = u.MatchState
		f.IsOpen = u.IsOpen
	}
	return nil
}

func (s *MemoryStore) ReplaceRealizedEvents(_ context.Context, owner, asset string, events []model.RealizedPnlEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[groupKey(owner, asset)] = append([]model.RealizedPnlEvent(nil), events...)
	return nil
}

func (s *MemoryStore) RealizedEventsByOwner(_ context.Context, owner string) ([]model.RealizedPnlEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []model.RealizedPnlEvent
	for _, events := range s.events {
		for _, e := range events {
			if e.Owner == owner {
				all = append(all, e)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ClosedAt.Before(all[j].ClosedAt)
	})
	return all, nil
}
