// Package pnl computes per-trade unrealized PnL for open lots and the
// rolling realized-profit summary. Summaries are always recomputed in
// full from the owner's realized PnL events, never incrementally.
//
// All values use shopspring/decimal — never float64 for money.
package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Unrealized computes the mark-to-market percentage change and PnL for
// one open lot:
//
//	percentageChange = direction * (price - avgFill) / avgFill * leverage * 100
//	margin           = avgFill * qty / leverage
//	pnl              = percentageChange / 100 * margin
//
// direction is +1 for Buy (long) and -1 for Sell (short). A zero
// avgFill or leverage short-circuits to (0, 0) instead of dividing.
func Unrealized(side model.Side, avgFill, currentPrice, leverage, qty decimal.Decimal) (percentageChange, pnl decimal.Decimal) {
	if avgFill.IsZero() || leverage.IsZero() {
		return decimal.Zero, decimal.Zero
	}

	move := currentPrice.Sub(avgFill)
	if side == model.SideSell {
		move = move.Neg()
	}
	percentageChange = move.Div(avgFill).Mul(leverage).Mul(hundred)

	margin := avgFill.Mul(qty).Div(leverage)
	pnl = percentageChange.Div(hundred).Mul(margin)
	return percentageChange, pnl
}

// PriceFunc supplies the current price for an asset. An unavailable
// price is reported as zero, never as an error.
type PriceFunc func(asset string) decimal.Decimal

// Positions marks every open fill to market. The open (remaining)
// quantity is what is valued, not the original fill size.
func Positions(fills []model.Fill, price PriceFunc) []model.OpenPosition {
	positions := make([]model.OpenPosition, 0, len(fills))
	for _, f := range fills {
		if !f.IsOpen {
			continue
		}
		live := price(f.Asset)
		pct, unrealized := Unrealized(f.Side, f.AvgFill, live, f.Leverage, f.RemainingQty)
		positions = append(positions, model.OpenPosition{
			FillID:           f.ID,
			Asset:            f.Asset,
			Side:             f.Side,
			Quantity:         f.RemainingQty,
			AvgFill:          f.AvgFill,
			LivePrice:        live,
			PercentageChange: pct.Round(2),
			UnrealizedPnl:    unrealized.Round(2),
		})
	}
	return positions
}

// BuildSummary recomputes the realized-profit summary in full from the
// owner's realized PnL events. Calendar windows are evaluated in UTC
// against now. All amounts are quantized to 2 decimal places.
func BuildSummary(owner string, events []model.RealizedPnlEvent, now time.Time) model.RealizedProfitSummary {
	now = now.UTC()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfYesterday := startOfToday.AddDate(0, 0, -1)
	startOfYear := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	var total, today, yesterday, yesterdayTotal decimal.Decimal
	var last30, last90, last180, yearly decimal.Decimal

	for _, e := range events {
		ts := e.ClosedAt.UTC()
		total = total.Add(e.Pnl)

		if !ts.Before(startOfToday) {
			today = today.Add(e.Pnl)
		} else {
			// Cumulative profit through end of yesterday; the baseline
			// for the daily percentage change.
			yesterdayTotal = yesterdayTotal.Add(e.Pnl)
		}
		if !ts.Before(startOfYesterday) && ts.Before(startOfToday) {
			yesterday = yesterday.Add(e.Pnl)
		}
		if !ts.Before(now.AddDate(0, 0, -30)) {
			last30 = last30.Add(e.Pnl)
		}
		if !ts.Before(now.AddDate(0, 0, -90)) {
			last90 = last90.Add(e.Pnl)
		}
		if !ts.Before(now.AddDate(0, 0, -180)) {
			last180 = last180.Add(e.Pnl)
		}
		if !ts.Before(startOfYear) {
			yearly = yearly.Add(e.Pnl)
		}
	}

	change := decimal.Zero
	if !yesterdayTotal.IsZero() {
		change = total.Sub(yesterdayTotal).Div(yesterdayTotal).Mul(hundred)
	}

	return model.RealizedProfitSummary{
		Owner:                 owner,
		Total:                 total.Round(2),
		Today:                 today.Round(2),
		YesterdayTotal:        yesterdayTotal.Round(2),
		Yesterday:             yesterday.Round(2),
		DailyPercentageChange: change.Round(2),
		Last30Day:             last30.Round(2),
		Last90Day:             last90.Round(2),
		Last180Day:            last180.Round(2),
		Yearly:                yearly.Round(2),
		UpdatedAt:             now,
	}
}
