// Package ingest validates exchange CSV exports and turns their rows
// into fills. It is a thin collaborator in front of the matching
// engine: schema validation, canceled-row filtering, and duplicate
// suppression all happen here so the engine only ever sees clean fills.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradebook/pnl-engine/internal/metrics"
	"github.com/tradebook/pnl-engine/internal/model"
	"github.com/tradebook/pnl-engine/internal/numparse"
	"github.com/tradebook/pnl-engine/internal/store"
)

// requiredColumns is the fixed schema of the supported export format.
var requiredColumns = []string{
	"Underlying Asset", "Margin Mode", "Leverage", "Order Time", "Side",
	"Avg Fill", "Price", "Filled", "Total", "PNL", "PNL%", "Fee",
	"Order Options", "Reduce-only", "Status",
}

// ErrMissingColumns is returned when the CSV header lacks required
// columns. The upload is rejected before any row is processed.
var ErrMissingColumns = errors.New("ingest: missing required columns")

// Report summarizes one upload: how many rows became new fills, how
// many were duplicate or canceled, and how many were malformed and
// dropped. Per-row failures are never surfaced individually.
type Report struct {
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Canceled   int `json:"canceled"`
	Malformed  int `json:"malformed"`
}

// Handler processes CSV uploads into the fill store.
type Handler struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewHandler creates an ingestion handler.
func NewHandler(st store.Store, m *metrics.Metrics) *Handler {
	return &Handler{store: st, metrics: m}
}

// ProcessCSV reads an export for one owner and inserts its rows as
// fills. Duplicate rows are dropped and counted, not treated as errors.
func (h *Handler) ProcessCSV(ctx context.Context, r io.Reader, owner, exchange string) (Report, error) {
	var report Report

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return report, fmt.Errorf("ingest: read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return report, err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken row never reaches the engine.
			report.Malformed++
			continue
		}

		row := func(col string) string { return record[index[col]] }

		if row("Status") == "Canceled" {
			report.Canceled++
			continue
		}

		fill, ok := h.rowToFill(row, owner, exchange)
		if !ok {
			report.Malformed++
			continue
		}

		switch err := h.store.InsertFill(ctx, fill); {
		case err == nil:
			report.New++
		case errors.Is(err, store.ErrDuplicateFill):
			report.Duplicates++
		default:
			return report, fmt.Errorf("ingest: insert fill: %w", err)
		}
	}

	h.count(report)
	slog.Info("csv upload processed",
		"owner", owner,
		"exchange", exchange,
		"new", report.New,
		"duplicates", report.Duplicates,
		"canceled", report.Canceled,
		"malformed", report.Malformed,
	)
	return report, nil
}

// rowToFill converts one validated CSV row into a fill. ok is false
// when the execution timestamp is unparseable.
func (h *Handler) rowToFill(row func(string) string, owner, exchange string) (*model.Fill, bool) {
	orderTime, ok := numparse.OrderTime(row("Order Time"))
	if !ok {
		return nil, false
	}

	qty := numparse.Decimal(row("Filled"))
	f := &model.Fill{
		ID:           uuid.New().String(),
		Owner:        owner,
		Asset:        row("Underlying Asset"),
		Side:         model.Side(row("Side")),
		OrderTime:    orderTime,
		AvgFill:      numparse.Decimal(row("Avg Fill")),
		Price:        numparse.Decimal(row("Price")),
		OriginalQty:  qty,
		RemainingQty: qty,
		Total:        numparse.Decimal(row("Total")),
		Fee:          numparse.Decimal(row("Fee")),
		Leverage:     numparse.Decimal(row("Leverage")),

		ReportedPnl:    numparse.Decimal(row("PNL")),
		ReportedPnlPct: numparse.Decimal(row("PNL%")),

		MarginMode:   row("Margin Mode"),
		OrderOptions: row("Order Options"),
		ReduceOnly:   numparse.Bool(row("Reduce-only")),
		TradeStatus:  row("Status"),
		Exchange:     exchange,
		MatchState:   model.Unmatched,
		IsOpen:       true,
		CreatedAt:    time.Now().UTC(),
	}
	return f, true
}

// columnIndex maps required column names to their positions, rejecting
// headers that miss any of them.
func columnIndex(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[name] = i
	}

	index := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, col := range requiredColumns {
		pos, ok := positions[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		index[col] = pos
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}
	return index, nil
}

func (h *Handler) count(r Report) {
	if h.metrics == nil {
		return
	}
	h.metrics.RowsIngested.WithLabelValues("new").Add(float64(r.New))
	h.metrics.RowsIngested.WithLabelValues("duplicate").Add(float64(r.Duplicates))
	h.metrics.RowsIngested.WithLabelValues("canceled").Add(float64(r.Canceled))
	h.metrics.RowsIngested.WithLabelValues("malformed").Add(float64(r.Malformed))
}
