// Package match implements the FIFO lot-matching engine: for one
// (owner, asset) group it reconciles all sell quantity against the
// oldest available buy quantity, first-in-first-out.
//
// The algorithm is not incremental. Every pass reverts each fill's
// remaining quantity to its original quantity and recomputes matching
// from the full fill history, which makes repeated runs idempotent
// regardless of prior partial state.
//
// All quantities use shopspring/decimal — never float64 for money.
package match

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/model"
)

// groupResult is the in-memory outcome of matching one asset group.
// Fills hold the post-match remaining quantity, match state, and open
// flag; Matches attributes sell quantity to buy lots.
type groupResult struct {
	Fills      []model.Fill
	Matches    []model.MatchRecord
	TotalBuys  decimal.Decimal
	TotalSells decimal.Decimal
	Balanced   bool
}

// matchGroup runs one full matching pass over an asset group's fills.
// The input is copied; callers persist the returned fills in a single
// atomic unit.
func matchGroup(fills []model.Fill) groupResult {
	working := make([]model.Fill, len(fills))
	copy(working, fills)

	// Revert to ledger truth and clear match flags.
	totalBuys := decimal.Zero
	totalSells := decimal.Zero
	for i := range working {
		working[i].RemainingQty = working[i].OriginalQty
		working[i].MatchState = model.Unmatched
		working[i].IsOpen = false
		if working[i].Side == model.SideBuy {
			totalBuys = totalBuys.Add(working[i].OriginalQty)
		} else {
			totalSells = totalSells.Add(working[i].OriginalQty)
		}
	}

	res := groupResult{
		Fills:      working,
		TotalBuys:  totalBuys,
		TotalSells: totalSells,
	}

	// A perfectly balanced book closes every fill, but attribution still
	// runs: the match records drive realized PnL, which must be captured
	// even when no lot stays open. Only the remaining-quantity
	// bookkeeping is skipped; balanced fills keep their reverted
	// originals.
	res.Balanced = totalBuys.Equal(totalSells)

	// FIFO order: oldest first. Timestamp ties break on ID so repeated
	// passes attribute lots identically.
	sort.SliceStable(working, func(i, j int) bool {
		if !working[i].OrderTime.Equal(working[j].OrderTime) {
			return working[i].OrderTime.Before(working[j].OrderTime)
		}
		return working[i].ID < working[j].ID
	})

	// Pending buys in ascending time order. head advances as the oldest
	// lot is consumed, so this is a queue, never a LIFO stack.
	pending := make([]*model.Fill, 0, len(working))
	head := 0

	for i := range working {
		fill := &working[i]
		if fill.Side == model.SideBuy {
			pending = append(pending, fill)
			continue
		}

		for fill.RemainingQty.IsPositive() && head < len(pending) {
			buy := pending[head]
			var matched decimal.Decimal

			if buy.RemainingQty.GreaterThan(fill.RemainingQty) {
				// Partial consumption of the buy lot; it stays queued.
				matched = fill.RemainingQty
				buy.RemainingQty = buy.RemainingQty.Sub(matched)
				fill.RemainingQty = decimal.Zero
			} else {
				// Exact equality lands here too: the buy is fully
				// consumed and popped, never left as a zero-sized partial.
				// A zero-quantity buy yields a zero-sized match record so
				// it is accounted, not silently skipped.
				matched = buy.RemainingQty
				fill.RemainingQty = fill.RemainingQty.Sub(matched)
				buy.RemainingQty = decimal.Zero
				head++
			}

			res.Matches = append(res.Matches, model.MatchRecord{
				SellFillID: fill.ID,
				BuyFillID:  buy.ID,
				Quantity:   matched,
			})
		}
		// A sell with remaining quantity after the queue is exhausted is
		// a naked short: it keeps its residual and is flagged open below.
	}

	for i := range working {
		f := &working[i]
		if res.Balanced {
			f.RemainingQty = f.OriginalQty
			f.MatchState = model.FullyMatched
			f.IsOpen = false
			continue
		}
		f.MatchState = model.DeriveMatchState(f.OriginalQty, f.RemainingQty)
		f.IsOpen = f.RemainingQty.IsPositive()
	}

	return res
}
