package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestUnrealized_Long(t *testing.T) {
	// Long 10 units @ 2.0 with 5x leverage, price now 2.2:
	// pct = (2.2-2.0)/2.0 * 5 * 100 = 50
	// margin = 2.0*10/5 = 4; pnl = 0.5 * 4 = 2
	pct, pnl := Unrealized(model.SideBuy, d(2.0), d(2.2), d(5), d(10))
	if !pct.Equal(d(50)) {
		t.Errorf("pct = %s, want 50", pct)
	}
	if !pnl.Equal(d(2)) {
		t.Errorf("pnl = %s, want 2", pnl)
	}
}

func TestUnrealized_Short(t *testing.T) {
	// Short gains when price falls.
	pct, pnl := Unrealized(model.SideSell, d(2.0), d(1.8), d(5), d(10))
	if !pct.Equal(d(50)) {
		t.Errorf("pct = %s, want 50", pct)
	}
	if !pnl.Equal(d(2)) {
		t.Errorf("pnl = %s, want 2", pnl)
	}
}

func TestUnrealized_ZeroGuards(t *testing.T) {
	pct, pnl := Unrealized(model.SideBuy, decimal.Zero, d(2), d(5), d(10))
	if !pct.IsZero() || !pnl.IsZero() {
		t.Errorf("zero avg fill should short-circuit, got %s/%s", pct, pnl)
	}
	pct, pnl = Unrealized(model.SideBuy, d(2), d(2.2), decimal.Zero, d(10))
	if !pct.IsZero() || !pnl.IsZero() {
		t.Errorf("zero leverage should short-circuit, got %s/%s", pct, pnl)
	}
}

func TestPositions_SkipsClosedAndMarksOpen(t *testing.T) {
	fills := []model.Fill{
		{ID: "a", Asset: "WIFUSDT", Side: model.SideBuy, AvgFill: d(2), RemainingQty: d(4), Leverage: d(1), IsOpen: true},
		{ID: "b", Asset: "WIFUSDT", Side: model.SideBuy, AvgFill: d(2), RemainingQty: decimal.Zero, Leverage: d(1), IsOpen: false},
	}
	positions := Positions(fills, func(string) decimal.Decimal { return d(3) })
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	// (3-2)/2 * 1 * 100 = 50%; margin = 2*4/1 = 8; pnl = 4.
	if !positions[0].UnrealizedPnl.Equal(d(4)) {
		t.Errorf("unrealized = %s, want 4", positions[0].UnrealizedPnl)
	}
}

func TestPositions_UnavailablePriceIsZeroNotFatal(t *testing.T) {
	fills := []model.Fill{
		{ID: "a", Asset: "WIFUSDT", Side: model.SideBuy, AvgFill: d(2), RemainingQty: d(4), Leverage: d(1), IsOpen: true},
	}
	positions := Positions(fills, func(string) decimal.Decimal { return decimal.Zero })
	if len(positions) != 1 {
		t.Fatal("position should still be reported")
	}
	// Marked against price 0: pct = -100, pnl = -8.
	if !positions[0].UnrealizedPnl.Equal(d(-8)) {
		t.Errorf("unrealized = %s, want -8", positions[0].UnrealizedPnl)
	}
}

func event(pnl float64, closedAt time.Time) model.RealizedPnlEvent {
	return model.RealizedPnlEvent{Owner: "user1", Pnl: decimal.NewFromFloat(pnl), ClosedAt: closedAt}
}

func TestBuildSummary_Windows(t *testing.T) {
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	events := []model.RealizedPnlEvent{
		event(10, now.Add(-2*time.Hour)),             // today
		event(5, now.AddDate(0, 0, -1)),              // yesterday
		event(20, now.AddDate(0, 0, -10)),            // 30-day window
		event(40, now.AddDate(0, 0, -60)),            // 90-day window
		event(80, now.AddDate(0, 0, -120)),           // 180-day window
		event(100, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)), // prior year
	}

	s := BuildSummary("user1", events, now)

	if !s.Total.Equal(d(255)) {
		t.Errorf("total = %s, want 255", s.Total)
	}
	if !s.Today.Equal(d(10)) {
		t.Errorf("today = %s, want 10", s.Today)
	}
	if !s.Yesterday.Equal(d(5)) {
		t.Errorf("yesterday = %s, want 5", s.Yesterday)
	}
	if !s.YesterdayTotal.Equal(d(245)) {
		t.Errorf("yesterday total = %s, want 245", s.YesterdayTotal)
	}
	if !s.Last30Day.Equal(d(35)) {
		t.Errorf("last 30 day = %s, want 35", s.Last30Day)
	}
	if !s.Last90Day.Equal(d(75)) {
		t.Errorf("last 90 day = %s, want 75", s.Last90Day)
	}
	if !s.Last180Day.Equal(d(155)) {
		t.Errorf("last 180 day = %s, want 155", s.Last180Day)
	}
	if !s.Yearly.Equal(d(155)) {
		t.Errorf("yearly = %s, want 155", s.Yearly)
	}
	// (255 - 245) / 245 * 100 = 4.08 at 2dp.
	if !s.DailyPercentageChange.Equal(d(4.08)) {
		t.Errorf("daily change = %s, want 4.08", s.DailyPercentageChange)
	}
}

func TestBuildSummary_ZeroBaselineGuard(t *testing.T) {
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	events := []model.RealizedPnlEvent{event(10, now.Add(-time.Hour))}

	s := BuildSummary("user1", events, now)
	if !s.DailyPercentageChange.IsZero() {
		t.Errorf("daily change with zero baseline = %s, want 0", s.DailyPercentageChange)
	}
}

func TestBuildSummary_Empty(t *testing.T) {
	s := BuildSummary("user1", nil, time.Now())
	if !s.Total.IsZero() || !s.Today.IsZero() || !s.DailyPercentageChange.IsZero() {
		t.Error("empty event set should produce an all-zero summary")
	}
}
