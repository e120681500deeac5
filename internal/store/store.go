// Package store defines the persistence interface for the PnL engine.
// Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/model"
)

// ErrDuplicateFill is returned when an insert would violate the fill
// uniqueness invariant (owner, asset, order time, original quantity,
// fee). Ingestion counts these rows; they are not surfaced as failures.
var ErrDuplicateFill = errors.New("store: duplicate fill")

// FillUpdate carries the match-state mutation for one fill. Updates for
// one (owner, asset) group are applied atomically: either all land or
// none do.
type FillUpdate struct {
	FillID       string
	RemainingQty decimal.Decimal
	MatchState   model.MatchState
	IsOpen       bool
}

// Store is the persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	// --- Fill ledger ---

	// InsertFill persists a new fill, rejecting duplicates with
	// ErrDuplicateFill.
	InsertFill(ctx context.Context, fill *model.Fill) error

	// BulkInsertFills inserts fills one by one, skipping duplicates.
	// Returns the number inserted and the number rejected as duplicates.
	BulkInsertFills(ctx context.Context, fills []*model.Fill) (inserted, duplicates int, err error)

	// FillsByAsset returns all fills for one (owner, asset) group.
	FillsByAsset(ctx context.Context, owner, asset string) ([]model.Fill, error)

	// ListAssets returns the distinct assets an owner holds fills for.
	ListAssets(ctx context.Context, owner string) ([]string, error)

	// OpenFillsByOwner returns every fill still flagged open.
	OpenFillsByOwner(ctx context.Context, owner string) ([]model.Fill, error)

	// --- Match persistence ---

	// ApplyMatchUpdates applies one matching pass's fill updates for a
	// single (owner, asset) group as an atomic unit.
	ApplyMatchUpdates(ctx context.Context, owner, asset string, updates []FillUpdate) error

	// ReplaceRealizedEvents swaps the realized PnL events for one
	// (owner, asset) group. The engine recomputes matching from the full
	// fill history, so events are replaced wholesale, never appended.
	ReplaceRealizedEvents(ctx context.Context, owner, asset string, events []model.RealizedPnlEvent) error

	// RealizedEventsByOwner returns all realized PnL events for an owner.
	RealizedEventsByOwner(ctx context.Context, owner string) ([]model.RealizedPnlEvent, error)
}
