package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/metrics"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m := metrics.New(prometheus.NewRegistry())
	return NewClient(srv.URL, "test-key", m)
}

func TestQuote_ParsesPrice(t *testing.T) {
	var gotPath string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[{"symbol":"WIFUSD","price":2.35}]`))
	})

	price := c.Quote(context.Background(), "WIFUSDT")
	if !price.Equal(decimal.NewFromFloat(2.35)) {
		t.Errorf("price = %s, want 2.35", price)
	}
	// Trailing T stripped before hitting the provider.
	if gotPath != "/quote/WIFUSD" {
		t.Errorf("path = %s, want /quote/WIFUSD", gotPath)
	}
}

func TestQuote_UnavailableIsZero(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if price := c.Quote(context.Background(), "WIFUSDT"); !price.IsZero() {
		t.Errorf("unavailable feed should price at 0, got %s", price)
	}
}

func TestQuote_EmptyBodyIsZero(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	if price := c.Quote(context.Background(), "WIFUSDT"); !price.IsZero() {
		t.Errorf("empty quote list should price at 0, got %s", price)
	}
}
