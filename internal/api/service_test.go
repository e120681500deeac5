package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/api"
	"github.com/tradebook/pnl-engine/internal/ingest"
	"github.com/tradebook/pnl-engine/internal/match"
	"github.com/tradebook/pnl-engine/internal/model"
	"github.com/tradebook/pnl-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// stubQuoter returns a fixed price for every asset.
type stubQuoter struct {
	price decimal.Decimal
}

func (q stubQuoter) Quote(_ context.Context, _ string) decimal.Decimal {
	return q.price
}

// newTestEnv creates a Service with an in-memory store and chi router.
func newTestEnv(t *testing.T, price float64) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	engine := match.NewEngine(ms)
	ing := ingest.NewHandler(ms, nil)
	svc := api.NewService(ms, engine, ing, stubQuoter{price: d(price)}, nil, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/uploads", svc.UploadCSV)
	r.Post("/api/v1/match/{owner}", svc.RunMatch)
	r.Get("/api/v1/fills/{owner}", svc.GetFills)
	r.Get("/api/v1/positions/{owner}", svc.GetPositions)
	r.Get("/api/v1/pnl/{owner}", svc.GetSummary)

	return ms, r
}

const csvHeader = "Underlying Asset,Margin Mode,Leverage,Order Time,Side,Avg Fill,Price,Filled,Total,PNL,PNL%,Fee,Order Options,Reduce-only,Status"

func csvRow(side, orderTime, avgFill, filled, fee string) string {
	return strings.Join([]string{
		"WIFUSDT", "Cross", "10", orderTime, side, avgFill, "Market",
		filled, "100", "--", "--", fee, "GTC", "N", "Filled",
	}, ",")
}

func doUpload(t *testing.T, router chi.Router, owner string, rows ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("owner", owner)
	mw.WriteField("exchange", "BloFin")
	part, _ := mw.CreateFormFile("file", "export.csv")
	part.Write([]byte(strings.Join(append([]string{csvHeader}, rows...), "\n")))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadCSV_IngestsAndMatches(t *testing.T) {
	ms, router := newTestEnv(t, 2.5)

	w := doUpload(t, router, "user1",
		csvRow("Buy", "08/15/2025 10:00:00", "2.0", "5", "0.01"),
		csvRow("Buy", "08/15/2025 10:30:00", "2.2", "3", "0.01"),
		csvRow("Sell", "08/15/2025 11:00:00", "3.0", "5", "0.01"),
	)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.UploadResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Report.New != 3 {
		t.Errorf("report = %+v, want 3 new rows", resp.Report)
	}
	if len(resp.Summaries) != 1 {
		t.Fatalf("expected 1 asset summary, got %d", len(resp.Summaries))
	}
	if !resp.Summaries[0].OpenBuyQty.Equal(d(3)) {
		t.Errorf("open buy qty = %s, want 3", resp.Summaries[0].OpenBuyQty)
	}

	// The matching pass ran: the oldest buy is consumed.
	fills, _ := ms.FillsByAsset(context.Background(), "user1", "WIFUSDT")
	for _, f := range fills {
		if f.Side == model.SideBuy && f.AvgFill.Equal(d(2.0)) {
			if f.MatchState != model.FullyMatched {
				t.Errorf("oldest buy should be fully matched, got %s", f.MatchState)
			}
		}
	}
}

func TestUploadCSV_DuplicateReupload(t *testing.T) {
	_, router := newTestEnv(t, 2.5)
	rows := []string{csvRow("Buy", "08/15/2025 10:00:00", "2.0", "5", "0.01")}

	doUpload(t, router, "user1", rows...)
	w := doUpload(t, router, "user1", rows...)

	var resp api.UploadResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Report.Duplicates != 1 || resp.Report.New != 0 {
		t.Errorf("re-upload report = %+v, want 1 duplicate", resp.Report)
	}
}

func TestUploadCSV_MissingOwner(t *testing.T) {
	_, router := newTestEnv(t, 2.5)
	req := httptest.NewRequest("POST", "/api/v1/uploads", strings.NewReader(""))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetPositions_MarksToMarket(t *testing.T) {
	_, router := newTestEnv(t, 3.0)
	doUpload(t, router, "user1",
		csvRow("Buy", "08/15/2025 10:00:00", "2.0", "4", "0.01"),
	)

	req := httptest.NewRequest("GET", "/api/v1/positions/user1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var positions []model.OpenPosition
	json.Unmarshal(w.Body.Bytes(), &positions)
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	if !positions[0].LivePrice.Equal(d(3.0)) {
		t.Errorf("live price = %s, want 3.0", positions[0].LivePrice)
	}
	// (3-2)/2 * 10 * 100 = 500%; margin = 2*4/10 = 0.8; pnl = 4.
	if !positions[0].UnrealizedPnl.Equal(d(4)) {
		t.Errorf("unrealized = %s, want 4", positions[0].UnrealizedPnl)
	}
}

func TestGetSummary_RealizedProfit(t *testing.T) {
	_, router := newTestEnv(t, 2.5)
	doUpload(t, router, "user1",
		csvRow("Buy", "08/15/2025 10:00:00", "2.0", "5", "0.01"),
		csvRow("Buy", "08/15/2025 10:30:00", "2.2", "3", "0.01"),
		csvRow("Sell", "08/15/2025 11:00:00", "3.0", "5", "0.01"),
	)

	req := httptest.NewRequest("GET", "/api/v1/pnl/user1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var summary model.RealizedProfitSummary
	json.Unmarshal(w.Body.Bytes(), &summary)
	// Sell 5 @ 3.0 against buy 5 @ 2.0 → realized 5.00.
	if !summary.Total.Equal(d(5)) {
		t.Errorf("total realized = %s, want 5", summary.Total)
	}
}

func TestGetFills_RequiresAsset(t *testing.T) {
	_, router := newTestEnv(t, 2.5)
	req := httptest.NewRequest("GET", "/api/v1/fills/user1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without asset param, got %d", w.Code)
	}
}
