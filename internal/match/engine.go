package match

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/model"
	"github.com/tradebook/pnl-engine/internal/store"
)

// Summary is the aggregate outcome of one matching pass for one asset
// group. The engine surfaces only these aggregates, never per-row
// diagnostics; residual sell quantity flags an imbalanced book for
// downstream review.
type Summary struct {
	Owner            string              `json:"owner"`
	Asset            string              `json:"asset"`
	TotalBuys        decimal.Decimal     `json:"total_buys"`
	TotalSells       decimal.Decimal     `json:"total_sells"`
	Balanced         bool                `json:"balanced"`
	Matches          []model.MatchRecord `json:"matches"`
	OpenBuyQty       decimal.Decimal     `json:"open_buy_qty"`
	UnmatchedSellQty decimal.Decimal     `json:"unmatched_sell_qty"`
}

// Engine coordinates matching passes. At most one pass runs per
// (owner, asset) group at a time; different groups run in parallel.
// There is no cross-asset state.
type Engine struct {
	store store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a matching engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		store: st,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing passes for one asset group.
func (e *Engine) lockFor(owner, asset string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := owner + "|" + asset
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// MatchAsset runs one full revert→match→persist pass for a single
// (owner, asset) group. If the atomic persist fails the pass returns an
// error and must be retried in full; no partial state is ever applied.
func (e *Engine) MatchAsset(ctx context.Context, owner, asset string) (*Summary, error) {
	l := e.lockFor(owner, asset)
	l.Lock()
	defer l.Unlock()

	fills, err := e.store.FillsByAsset(ctx, owner, asset)
	if err != nil {
		return nil, fmt.Errorf("match %s/%s: load fills: %w", owner, asset, err)
	}
	if len(fills) == 0 {
		return &Summary{Owner: owner, Asset: asset}, nil
	}

	res := matchGroup(fills)

	updates := make([]store.FillUpdate, len(res.Fills))
	for i, f := range res.Fills {
		updates[i] = store.FillUpdate{
			FillID:       f.ID,
			RemainingQty: f.RemainingQty,
			MatchState:   f.MatchState,
			IsOpen:       f.IsOpen,
		}
	}
	if err := e.store.ApplyMatchUpdates(ctx, owner, asset, updates); err != nil {
		return nil, fmt.Errorf("match %s/%s: persist: %w", owner, asset, err)
	}

	events := realizedEvents(owner, asset, res)
	if err := e.store.ReplaceRealizedEvents(ctx, owner, asset, events); err != nil {
		return nil, fmt.Errorf("match %s/%s: realized events: %w", owner, asset, err)
	}

	summary := &Summary{
		Owner:      owner,
		Asset:      asset,
		TotalBuys:  res.TotalBuys,
		TotalSells: res.TotalSells,
		Balanced:   res.Balanced,
		Matches:    res.Matches,
	}
	// Open state, not remaining quantity, decides what counts: balanced
	// books keep their reverted remaining quantities on closed fills.
	for _, f := range res.Fills {
		if !f.IsOpen {
			continue
		}
		if f.Side == model.SideBuy {
			summary.OpenBuyQty = summary.OpenBuyQty.Add(f.RemainingQty)
		} else {
			summary.UnmatchedSellQty = summary.UnmatchedSellQty.Add(f.RemainingQty)
		}
	}

	slog.Info("matching pass complete",
		"owner", owner,
		"asset", asset,
		"total_buys", summary.TotalBuys.String(),
		"total_sells", summary.TotalSells.String(),
		"balanced", summary.Balanced,
		"matches", len(summary.Matches),
		"open_buy_qty", summary.OpenBuyQty.String(),
		"unmatched_sell_qty", summary.UnmatchedSellQty.String(),
	)
	if summary.UnmatchedSellQty.IsPositive() {
		slog.Warn("imbalanced book: sell quantity exceeds available buy lots",
			"owner", owner,
			"asset", asset,
			"residual", summary.UnmatchedSellQty.String(),
		)
	}

	return summary, nil
}

// MatchOwner runs a matching pass for every asset the owner has fills
// in and returns the per-asset summaries. The caller decides what to
// recompute from the affected keys; the engine triggers nothing itself.
func (e *Engine) MatchOwner(ctx context.Context, owner string) ([]Summary, error) {
	assets, err := e.store.ListAssets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("match owner %s: list assets: %w", owner, err)
	}

	summaries := make([]Summary, 0, len(assets))
	for _, asset := range assets {
		s, err := e.MatchAsset(ctx, owner, asset)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, *s)
	}
	return summaries, nil
}

// realizedEvents derives realized PnL events from a pass result: one
// event per sell that ended fully matched, with
// pnl = Σ (sell avg fill − buy avg fill) × matched quantity over the
// sell's match records.
func realizedEvents(owner, asset string, res groupResult) []model.RealizedPnlEvent {
	byID := make(map[string]*model.Fill, len(res.Fills))
	for i := range res.Fills {
		byID[res.Fills[i].ID] = &res.Fills[i]
	}

	pnlBySell := make(map[string]decimal.Decimal)
	var order []string
	for _, m := range res.Matches {
		sell, buy := byID[m.SellFillID], byID[m.BuyFillID]
		if sell == nil || buy == nil {
			continue
		}
		if _, seen := pnlBySell[m.SellFillID]; !seen {
			order = append(order, m.SellFillID)
		}
		delta := sell.AvgFill.Sub(buy.AvgFill).Mul(m.Quantity)
		pnlBySell[m.SellFillID] = pnlBySell[m.SellFillID].Add(delta)
	}

	var events []model.RealizedPnlEvent
	for _, sellID := range order {
		sell := byID[sellID]
		if sell.MatchState != model.FullyMatched {
			// Profit is locked in only once the closing trade is fully
			// matched; partially covered sells stay pending.
			continue
		}
		events = append(events, model.RealizedPnlEvent{
			ID:         uuid.New().String(),
			Owner:      owner,
			Asset:      asset,
			SellFillID: sellID,
			Pnl:        pnlBySell[sellID],
			ClosedAt:   sell.OrderTime,
		})
	}
	return events
}
