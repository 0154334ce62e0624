// Package stubs hosts fake upstream providers for local development and
// integration tests. Payload shapes match what the real providers return;
// values are deterministic so runs are reproducible.
package stubs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

type stockRow struct {
	Symbol    string
	Name      string
	Exchange  string
	Price     float64
	Change    float64
	Volume    int64
	MarketCap float64
	PE        float64
	Industry  string
	Sector    string
}

var stockRows = map[string]stockRow{
	"AAPL": {"AAPL", "Apple Inc.", "NASDAQ", 190.50, 1.20, 52_000_000, 2.9e12, 31.4, "Consumer Electronics", "Technology"},
	"MSFT": {"MSFT", "Microsoft Corporation", "NASDAQ", 410.00, -0.40, 21_000_000, 3.1e12, 35.2, "Software - Infrastructure", "Technology"},
	"KO":   {"KO", "The Coca-Cola Company", "NYSE", 61.25, 0.15, 12_000_000, 2.6e11, 24.8, "Beverages - Non-Alcoholic", "Consumer Defensive"},
}

var coinRows = map[string]struct {
	Price     float64
	Change    float64
	Volume    float64
	MarketCap float64
}{
	"bitcoin":  {67000.50, -1.70, 2.4e10, 1.3e12},
	"ethereum": {3200.25, 0.90, 1.1e10, 3.8e11},
}

// RateLimitAfter makes a stub start answering 429 after n requests, to
// exercise the cooldown path end to end. Zero disables it.
type limitCounter struct {
	limit int64
	seen  atomic.Int64
}

func (lc *limitCounter) exceeded() bool {
	if lc.limit <= 0 {
		return false
	}
	return lc.seen.Add(1) > lc.limit
}

// NewSecuritiesServer returns a handler mimicking the equities provider.
func NewSecuritiesServer(rateLimitAfter int) http.Handler {
	lc := &limitCounter{limit: int64(rateLimitAfter)}
	r := chi.NewRouter()

	r.Get("/quote/{symbol}", func(w http.ResponseWriter, req *http.Request) {
		if lc.exceeded() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		row, ok := stockRows[strings.ToUpper(chi.URLParam(req, "symbol"))]
		if !ok {
			writeJSON(w, []any{})
			return
		}
		writeJSON(w, []map[string]any{{
			"symbol": row.Symbol, "name": row.Name, "price": row.Price,
			"changesPercentage": row.Change, "volume": row.Volume,
			"marketCap": row.MarketCap, "pe": row.PE,
		}})
	})

	r.Get("/historical-price-full/{symbol}", func(w http.ResponseWriter, req *http.Request) {
		if lc.exceeded() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		symbol := strings.ToUpper(chi.URLParam(req, "symbol"))
		row, ok := stockRows[symbol]
		if !ok {
			writeJSON(w, map[string]any{"symbol": symbol, "historical": []any{}})
			return
		}
		days := 30
		fmt.Sscanf(req.URL.Query().Get("timeseries"), "%d", &days)
		historical := make([]map[string]any, 0, days)
		for i := 0; i < days; i++ {
			day := time.Now().AddDate(0, 0, -i)
			historical = append(historical, map[string]any{
				"date":   day.Format("2006-01-02"),
				"close":  row.Price * (1 - 0.002*float64(i)),
				"volume": row.Volume,
			})
		}
		writeJSON(w, map[string]any{"symbol": symbol, "historical": historical})
	})

	r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
		if lc.exceeded() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		query := strings.ToUpper(req.URL.Query().Get("query"))
		results := []map[string]any{}
		for _, row := range stockRows {
			if strings.Contains(row.Symbol, query) || strings.Contains(strings.ToUpper(row.Name), query) {
				results = append(results, map[string]any{
					"symbol": row.Symbol, "name": row.Name, "exchangeShortName": row.Exchange,
				})
			}
		}
		writeJSON(w, results)
	})

	r.Get("/profile/{symbol}", func(w http.ResponseWriter, req *http.Request) {
		if lc.exceeded() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		row, ok := stockRows[strings.ToUpper(chi.URLParam(req, "symbol"))]
		if !ok {
			writeJSON(w, []any{})
			return
		}
		writeJSON(w, []map[string]any{{
			"symbol": row.Symbol, "companyName": row.Name, "industry": row.Industry,
			"sector": row.Sector, "exchangeShortName": row.Exchange,
			"description": fmt.Sprintf("%s trades on %s.", row.Name, row.Exchange),
		}})
	})

	return r
}

// NewCryptoServer returns a handler mimicking the crypto price provider.
func NewCryptoServer(rateLimitAfter int) http.Handler {
	lc := &limitCounter{limit: int64(rateLimitAfter)}
	r := chi.NewRouter()

	r.Get("/simple/price", func(w http.ResponseWriter, req *http.Request) {
		if lc.exceeded() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		out := map[string]any{}
		for _, id := range strings.Split(req.URL.Query().Get("ids"), ",") {
			if row, ok := coinRows[id]; ok {
				out[id] = map[string]any{
					"usd": row.Price, "usd_market_cap": row.MarketCap,
					"usd_24h_vol": row.Volume, "usd_24h_change": row.Change,
				}
			}
		}
		writeJSON(w, out)
	})

	r.Get("/coins/{id}/market_chart", func(w http.ResponseWriter, req *http.Request) {
		if lc.exceeded() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		row, ok := coinRows[chi.URLParam(req, "id")]
		if !ok {
			writeJSON(w, map[string]any{"prices": []any{}, "total_volumes": []any{}})
			return
		}
		days := 30
		fmt.Sscanf(req.URL.Query().Get("days"), "%d", &days)
		prices := make([][2]float64, 0, days)
		volumes := make([][2]float64, 0, days)
		for i := days - 1; i >= 0; i-- {
			ms := float64(time.Now().AddDate(0, 0, -i).UnixMilli())
			prices = append(prices, [2]float64{ms, row.Price * (1 - 0.003*float64(i))})
			volumes = append(volumes, [2]float64{ms, row.Volume})
		}
		writeJSON(w, map[string]any{"prices": prices, "total_volumes": volumes})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
