// Package api provides the HTTP handlers for CSV uploads, matching
// passes, open-position views, and realized-profit summaries.
//
// The handlers are thin plumbing around the matching engine: they
// validate input, invoke the engine, and render results. The engine
// itself never touches HTTP or the price feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/ingest"
	"github.com/tradebook/pnl-engine/internal/match"
	"github.com/tradebook/pnl-engine/internal/metrics"
	"github.com/tradebook/pnl-engine/internal/model"
	"github.com/tradebook/pnl-engine/internal/pnl"
	"github.com/tradebook/pnl-engine/internal/store"
)

// Quoter supplies current prices for mark-to-market views. An
// unavailable price is zero, never an error.
type Quoter interface {
	Quote(ctx context.Context, symbol string) decimal.Decimal
}

// Service wires the collaborators behind the HTTP surface.
type Service struct {
	store   store.Store
	engine  *match.Engine
	ingest  *ingest.Handler
	quoter  Quoter
	metrics *metrics.Metrics
	wsHub   *WSHub // optional hub for real-time broadcasts
}

// NewService creates the API service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, engine *match.Engine, ing *ingest.Handler, quoter Quoter, m *metrics.Metrics, hub *WSHub) *Service {
	return &Service{
		store:   st,
		engine:  engine,
		ingest:  ing,
		quoter:  quoter,
		metrics: m,
		wsHub:   hub,
	}
}

// UploadResponse is the JSON body returned from POST /api/v1/uploads.
type UploadResponse struct {
	Report    ingest.Report   `json:"report"`
	Summaries []match.Summary `json:"summaries"`
}

// UploadCSV handles POST /api/v1/uploads. It ingests the export, runs a
// matching pass over every affected asset, and recomputes the owner's
// realized-profit summary — the explicit post-match pipeline.
func (s *Service) UploadCSV(w http.ResponseWriter, r *http.Request) {
	owner := r.FormValue("owner")
	if owner == "" {
		writeError(w, "owner is required", http.StatusBadRequest)
		return
	}
	exchange := r.FormValue("exchange")
	if exchange == "" {
		exchange = "BloFin"
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ctx := r.Context()
	report, err := s.ingest.ProcessCSV(ctx, file, owner, exchange)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingColumns) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, "failed to process upload", http.StatusInternalServerError)
		return
	}

	summaries, err := s.runMatch(ctx, owner)
	if err != nil {
		writeError(w, "matching pass failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(UploadResponse{Report: report, Summaries: summaries})
}

// RunMatch handles POST /api/v1/match/{owner} — a full matching pass
// over all of the owner's assets, independent of any upload.
func (s *Service) RunMatch(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	summaries, err := s.runMatch(r.Context(), owner)
	if err != nil {
		writeError(w, "matching pass failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// runMatch executes the engine and the explicit post-match pipeline:
// metrics, WebSocket broadcasts. The engine only returns affected keys;
// nothing cascades implicitly.
func (s *Service) runMatch(ctx context.Context, owner string) ([]match.Summary, error) {
	start := time.Now()
	summaries, err := s.engine.MatchOwner(ctx, owner)
	if err != nil {
		if s.metrics != nil {
			s.metrics.MatchPasses.WithLabelValues("failed").Inc()
		}
		slog.Error("matching pass failed", "owner", owner, "err", err)
		return nil, err
	}

	unmatched := decimal.Zero
	for _, summary := range summaries {
		unmatched = unmatched.Add(summary.UnmatchedSellQty)
		if s.metrics != nil {
			outcome := "attributed"
			if summary.Balanced {
				outcome = "balanced"
			}
			s.metrics.MatchPasses.WithLabelValues(outcome).Inc()
		}
		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:             "match_pass",
				Owner:            summary.Owner,
				Asset:            summary.Asset,
				TotalBuys:        summary.TotalBuys.String(),
				TotalSells:       summary.TotalSells.String(),
				OpenBuyQty:       summary.OpenBuyQty.String(),
				UnmatchedSellQty: summary.UnmatchedSellQty.String(),
				Balanced:         summary.Balanced,
			})
		}
	}
	if s.metrics != nil {
		s.metrics.UnmatchedSells.Set(unmatched.InexactFloat64())
		s.metrics.MatchLatency.Observe(time.Since(start).Seconds())
	}
	return summaries, nil
}

// GetFills handles GET /api/v1/fills/{owner}?asset=SYMBOL.
func (s *Service) GetFills(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		writeError(w, "asset query parameter is required", http.StatusBadRequest)
		return
	}

	fills, err := s.store.FillsByAsset(r.Context(), owner, asset)
	if err != nil {
		writeError(w, "failed to load fills", http.StatusInternalServerError)
		return
	}
	if fills == nil {
		fills = []model.Fill{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fills)
}

// GetPositions handles GET /api/v1/positions/{owner}: every open lot
// marked to market. Prices are fetched up front, outside any matching.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	ctx := r.Context()

	fills, err := s.store.OpenFillsByOwner(ctx, owner)
	if err != nil {
		writeError(w, "failed to load open fills", http.StatusInternalServerError)
		return
	}

	prices := make(map[string]decimal.Decimal)
	for _, f := range fills {
		if _, ok := prices[f.Asset]; !ok {
			prices[f.Asset] = s.quoter.Quote(ctx, f.Asset)
		}
	}

	positions := pnl.Positions(fills, func(asset string) decimal.Decimal {
		return prices[asset]
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(positions)
}

// GetSummary handles GET /api/v1/pnl/{owner}: the realized-profit
// summary, recomputed in full from the owner's realized PnL events.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	events, err := s.store.RealizedEventsByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, "failed to load realized pnl", http.StatusInternalServerError)
		return
	}

	summary := pnl.BuildSummary(owner, events, time.Now().UTC())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
