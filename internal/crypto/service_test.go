package crypto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/cache"
	"github.com/finboard/finboard/internal/marketdata"
	"github.com/finboard/finboard/internal/quota"
	"github.com/finboard/finboard/internal/transport"
)

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "bitcoin", CanonicalID("btc"))
	assert.Equal(t, "bitcoin", CanonicalID(" BTC "))
	assert.Equal(t, "bitcoin", CanonicalID("bitcoin"))
	assert.Equal(t, "solana", CanonicalID("SOL"))
	// Unknown tickers pass through as already canonical.
	assert.Equal(t, "somecoin", CanonicalID("SomeCoin"))
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	tracker := quota.NewTracker("crypto", 500, quota.DefaultCooldown, zerolog.Nop())
	tr := transport.New(transport.Provider{Name: "crypto", BaseURL: server.URL}, tracker,
		transport.Config{RateLimitPerMinute: 60000}, zerolog.Nop())

	return New(tr, cache.New(100, zerolog.Nop()), zerolog.Nop()), &calls
}

func TestPrice_TickerAndCanonicalIDShareCacheKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"bitcoin":{"usd":67000.5,"usd_market_cap":1.3e12,"usd_24h_vol":2.4e10,"usd_24h_change":-1.7}}`))
	})
	svc, calls := newTestService(t, mux)

	q1, err := svc.Price(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", q1.Symbol)
	assert.Equal(t, 67000.5, q1.Price)
	assert.Equal(t, -1.7, q1.Change)
	assert.Equal(t, int64(2.4e10), q1.Volume)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// The canonical form hits the same cache entry: no second upstream call.
	q2, err := svc.Price(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestPrice_MissingCoinIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	_, err := svc.Price(context.Background(), "nocoin")
	require.Error(t, err)
	assert.True(t, marketdata.IsKind(err, marketdata.KindNotFound))
}

func TestHistory_AscendingWithVolumes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/coins/bitcoin/market_chart", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		w.Write([]byte(`{
			"prices":[[1767225600000,64000],[1767139200000,63000]],
			"total_volumes":[[1767225600000,2.1e10],[1767139200000,1.9e10]]}`))
	})
	svc, _ := newTestService(t, mux)

	points, err := svc.History(context.Background(), "BTC", 7)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Date.Before(points[1].Date))
	assert.Equal(t, 63000.0, points[0].Close)
	assert.Equal(t, int64(1.9e10), points[0].Volume)
	assert.Equal(t, 64000.0, points[1].Close)
}

func TestHistory_EmptyChartIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[],"total_volumes":[]}`))
	}))

	_, err := svc.History(context.Background(), "btc", 7)
	require.Error(t, err)
	assert.True(t, marketdata.IsKind(err, marketdata.KindNotFound))
}
