package securities

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/cache"
	"github.com/finboard/finboard/internal/marketdata"
	"github.com/finboard/finboard/internal/quota"
	"github.com/finboard/finboard/internal/transport"
)

func newTestService(t *testing.T, handler http.Handler) (*Service, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	tracker := quota.NewTracker("stocks", 500, quota.DefaultCooldown, zerolog.Nop())
	tr := transport.New(transport.Provider{Name: "stocks", BaseURL: server.URL}, tracker,
		transport.Config{RateLimitPerMinute: 60000}, zerolog.Nop())

	return New(tr, cache.New(100, zerolog.Nop()), zerolog.Nop()), &calls
}

func TestQuote_ShapesAndCaches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote/AAPL", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"AAPL","name":"Apple Inc.","price":190.5,"changesPercentage":1.2,"volume":52000000,"marketCap":2.9e12,"pe":31.4}]`))
	})
	svc, calls := newTestService(t, mux)

	q, err := svc.Quote(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.Equal(t, 190.5, q.Price)
	assert.Equal(t, 1.2, q.Change)
	assert.Equal(t, int64(52000000), q.Volume)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// Second call within the TTL is served from cache: zero network activity.
	q2, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, q, q2)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestQuote_EmptyPayloadIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	_, err := svc.Quote(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.True(t, marketdata.IsKind(err, marketdata.KindNotFound))
}

func TestHistory_AscendingByDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/historical-price-full/AAPL", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("timeseries"))
		// Provider returns newest first; the service must reorder.
		w.Write([]byte(`{"symbol":"AAPL","historical":[
			{"date":"2026-03-06","close":191.0,"volume":100},
			{"date":"2026-03-05","close":190.0,"volume":200},
			{"date":"2026-03-04","close":189.0,"volume":300}]}`))
	})
	svc, _ := newTestService(t, mux)

	points, err := svc.History(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, points, 3)
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i-1].Date.Before(points[i].Date), "series must ascend by date")
	}
	assert.Equal(t, 189.0, points[0].Close)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), points[2].Date)
}

func TestSearchByName_TermFloor(t *testing.T) {
	svc, calls := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	results, err := svc.SearchByName(context.Background(), "ab")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls), "short terms must not hit the transport")

	_, err = svc.SearchByName(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestSearchByName_FilterAndOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AMD", r.URL.Query().Get("query"))
		w.Write([]byte(`[
			{"symbol":"AMDY","name":"YieldMax AMD","exchangeShortName":"NYSE"},
			{"symbol":"AMD.DE","name":"AMD Frankfurt","exchangeShortName":"XETRA"},
			{"symbol":"AMD","name":"Advanced Micro Devices","exchangeShortName":"NASDAQ"},
			{"symbol":"AMDL","name":"GraniteShares AMD","exchangeShortName":"NASDAQ"},
			{"symbol":"DOCN","name":"DigitalOcean","exchangeShortName":"NYSE"}]`))
	})
	svc, _ := newTestService(t, mux)

	results, err := svc.SearchByName(context.Background(), "AMD")
	require.NoError(t, err)

	symbols := make([]string, len(results))
	for i, r := range results {
		symbols[i] = r.Symbol
	}
	// Exact match first, prefix matches next (lexicographic), rest last; the
	// XETRA listing is filtered out by the exchange allow-list.
	assert.Equal(t, []string{"AMD", "AMDL", "AMDY", "DOCN"}, symbols)
}

func TestSearchBySymbol_UnsupportedExchange(t *testing.T) {
	svc, calls := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	for _, symbol := range []string{"7203.T", "VOD.L", "600519.SS", "BMW.DE"} {
		_, err := svc.SearchBySymbol(context.Background(), symbol)
		require.Error(t, err, symbol)
		assert.True(t, marketdata.IsKind(err, marketdata.KindUnsupportedExchange), symbol)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(calls), "pre-filtered symbols must not hit the transport")
}

func TestSearchBySymbol_CombinesQuoteAndProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote/AAPL", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"AAPL","name":"Apple Inc.","price":190.5,"changesPercentage":1.2,"volume":52000000,"marketCap":2.9e12,"pe":31.4}]`))
	})
	mux.HandleFunc("/profile/AAPL", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"AAPL","companyName":"Apple Inc.","industry":"Consumer Electronics","sector":"Technology","exchangeShortName":"NASDAQ","description":"Designs smartphones."}]`))
	})
	svc, calls := newTestService(t, mux)

	detail, err := svc.SearchBySymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", detail.Symbol)
	assert.Equal(t, 190.5, detail.Price)
	assert.Equal(t, "Technology", detail.Sector)
	assert.Equal(t, "Consumer Electronics", detail.Industry)
	assert.Equal(t, "NASDAQ", detail.Exchange)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))

	// Cached detail requires no further requests.
	_, err = svc.SearchBySymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestQuote_QuotaExhaustedFailsFast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tracker := quota.NewTracker("stocks", 500, quota.DefaultCooldown, zerolog.Nop())
	tr := transport.New(transport.Provider{Name: "stocks", BaseURL: server.URL}, tracker,
		transport.Config{RateLimitPerMinute: 60000, MaxRetries: 1}, zerolog.Nop())
	svc := New(tr, cache.New(100, zerolog.Nop()), zerolog.Nop())

	// The 429 marks the tracker exhausted.
	_, err := svc.Quote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, marketdata.IsKind(err, marketdata.KindRateLimited))

	// Subsequent calls are rejected locally.
	_, err = svc.Quote(context.Background(), "MSFT")
	require.Error(t, err)
	assert.True(t, marketdata.IsKind(err, marketdata.KindQuotaExceeded))
}
