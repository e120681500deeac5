// Package model defines the core domain types shared across the PnL engine.
// All quantities, prices, and PnL values use shopspring/decimal — never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// MatchState describes how much of a fill's quantity has been consumed
// by lot matching. It is derived from remaining vs original quantity but
// stored explicitly so downstream views never recompute it.
type MatchState string

const (
	// Unmatched means no quantity has been consumed yet.
	Unmatched MatchState = "unmatched"
	// PartiallyMatched means some, but not all, quantity has been consumed.
	PartiallyMatched MatchState = "partial"
	// FullyMatched means the fill's quantity is fully consumed.
	FullyMatched MatchState = "matched"
)

// DeriveMatchState computes the stored match state from quantities.
// A zero remaining quantity always wins, so a zero-quantity fill is
// accounted as fully matched rather than silently skipped.
func DeriveMatchState(original, remaining decimal.Decimal) MatchState {
	switch {
	case remaining.IsZero():
		return FullyMatched
	case remaining.Equal(original):
		return Unmatched
	default:
		return PartiallyMatched
	}
}

// Fill is one executed order line from an exchange export.
//
// OriginalQty is immutable ledger truth, set once at ingestion.
// RemainingQty starts equal to OriginalQty and decreases as the lot is
// consumed by matching; for sells it is the quantity not yet matched
// against a buy lot.
type Fill struct {
	ID    string `json:"id" db:"id"`
	Owner string `json:"owner" db:"owner"`
	Asset string `json:"asset" db:"asset"`
	Side  Side   `json:"side" db:"side"`

	OrderTime    time.Time       `json:"order_time" db:"order_time"`
	AvgFill      decimal.Decimal `json:"avg_fill" db:"avg_fill"`
	Price        decimal.Decimal `json:"price" db:"price"`
	OriginalQty  decimal.Decimal `json:"original_qty" db:"original_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty" db:"remaining_qty"`
	Total        decimal.Decimal `json:"total" db:"total"`
	Fee          decimal.Decimal `json:"fee" db:"fee"`
	Leverage     decimal.Decimal `json:"leverage" db:"leverage"`

	// ReportedPnl carries the exchange's own per-row PnL figures as
	// exported. Kept for reconciliation against the engine's numbers,
	// never used in matching.
	ReportedPnl    decimal.Decimal `json:"reported_pnl" db:"reported_pnl"`
	ReportedPnlPct decimal.Decimal `json:"reported_pnl_pct" db:"reported_pnl_pct"`

	MarginMode   string `json:"margin_mode" db:"margin_mode"`
	OrderOptions string `json:"order_options" db:"order_options"`
	ReduceOnly   bool   `json:"reduce_only" db:"reduce_only"`
	TradeStatus  string `json:"trade_status" db:"trade_status"`
	Exchange     string `json:"exchange" db:"exchange"`

	MatchState MatchState `json:"match_state" db:"match_state"`
	IsOpen     bool       `json:"is_open" db:"is_open"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MatchRecord is the ephemeral output of one matching pass: a slice of
// sell quantity attributed to one buy lot. Never persisted as its own
// entity; it exists to drive fill updates and realized PnL events.
type MatchRecord struct {
	SellFillID string          `json:"sell_fill_id"`
	BuyFillID  string          `json:"buy_fill_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// RealizedPnlEvent is the profit locked in when a sell is fully matched
// against buy lots. ClosedAt is the sell's execution time, which drives
// the calendar windows in RealizedProfitSummary.
type RealizedPnlEvent struct {
	ID         string          `json:"id" db:"id"`
	Owner      string          `json:"owner" db:"owner"`
	Asset      string          `json:"asset" db:"asset"`
	SellFillID string          `json:"sell_fill_id" db:"sell_fill_id"`
	Pnl        decimal.Decimal `json:"pnl" db:"pnl"`
	ClosedAt   time.Time       `json:"closed_at" db:"closed_at"`
}

// RealizedProfitSummary is the rolling realized-profit view for one
// owner. It is recomputed in full from the owner's realized PnL events
// on every access, never updated incrementally.
type RealizedProfitSummary struct {
	Owner                 string          `json:"owner"`
	Total                 decimal.Decimal `json:"total"`
	Today                 decimal.Decimal `json:"today"`
	YesterdayTotal        decimal.Decimal `json:"yesterday_total"`
	Yesterday             decimal.Decimal `json:"yesterday"`
	DailyPercentageChange decimal.Decimal `json:"daily_percentage_change"`
	Last30Day             decimal.Decimal `json:"last_30_day"`
	Last90Day             decimal.Decimal `json:"last_90_day"`
	Last180Day            decimal.Decimal `json:"last_180_day"`
	Yearly                decimal.Decimal `json:"yearly"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// OpenPosition is the mark-to-market view of one open lot.
type OpenPosition struct {
	FillID           string          `json:"fill_id"`
	Asset            string          `json:"asset"`
	Side             Side            `json:"side"`
	Quantity         decimal.Decimal `json:"quantity"`
	AvgFill          decimal.Decimal `json:"avg_fill"`
	LivePrice        decimal.Decimal `json:"live_price"`
	PercentageChange decimal.Decimal `json:"percentage_change"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
}
