// Package crypto implements the cryptocurrency lookup operations against a
// CoinGecko-style provider: current price with 24h stats, and market-chart
// history. Short tickers are resolved to canonical ids before any cache or
// network operation, so "btc" and "bitcoin" share one cache key.
package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/finboard/finboard/internal/cache"
	"github.com/finboard/finboard/internal/marketdata"
	"github.com/finboard/finboard/internal/transport"
)

// Service is the crypto lookup front end.
type Service struct {
	transport *transport.RetryingTransport
	cache     *cache.ResponseCache
	log       zerolog.Logger
	group     singleflight.Group
}

// New creates a crypto Service on top of a transport and shared cache.
func New(tr *transport.RetryingTransport, c *cache.ResponseCache, log zerolog.Logger) *Service {
	return &Service{
		transport: tr,
		cache:     c,
		log:       log.With().Str("component", "crypto").Logger(),
	}
}

type priceWire map[string]struct {
	USD          float64 `json:"usd"`
	USDMarketCap float64 `json:"usd_market_cap"`
	USD24hVol    float64 `json:"usd_24h_vol"`
	USD24hChange float64 `json:"usd_24h_change"`
}

type chartWire struct {
	Prices       [][2]float64 `json:"prices"`        // [unix ms, price]
	TotalVolumes [][2]float64 `json:"total_volumes"` // [unix ms, volume]
}

// Price returns the current USD price with 24h change, volume, and market cap.
// Cached for 5 minutes under the canonical id.
func (s *Service) Price(ctx context.Context, ticker string) (marketdata.Quote, error) {
	id := CanonicalID(ticker)
	if v, ok := s.cache.Get(marketdata.CategoryCrypto, id, marketdata.CategoryCrypto.TTL()); ok {
		return v.(marketdata.Quote), nil
	}

	v, err, _ := s.group.Do("price:"+id, func() (any, error) {
		return s.fetchPrice(ctx, id)
	})
	if err != nil {
		return marketdata.Quote{}, err
	}
	return v.(marketdata.Quote), nil
}

func (s *Service) fetchPrice(ctx context.Context, id string) (marketdata.Quote, error) {
	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")
	params.Set("include_market_cap", "true")
	params.Set("include_24hr_vol", "true")
	params.Set("include_24hr_change", "true")

	body, err := s.transport.Send(ctx, transport.Request{
		Path:        "/simple/price",
		Params:      params,
		SubCategory: "crypto",
		Symbol:      id,
	})
	if err != nil {
		return marketdata.Quote{}, err
	}

	var wire priceWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return marketdata.Quote{}, marketdata.NewNotFoundError(id, "malformed price payload")
	}
	row, ok := wire[id]
	if !ok || row.USD <= 0 {
		return marketdata.Quote{}, marketdata.NewNotFoundError(id, "no price data returned")
	}

	q := marketdata.Quote{
		Symbol:    id,
		Price:     row.USD,
		Change:    row.USD24hChange,
		Volume:    int64(row.USD24hVol),
		MarketCap: row.USDMarketCap,
		FetchedAt: time.Now(),
	}

	s.cache.Set(marketdata.CategoryCrypto, id, q)
	return q, nil
}

// History returns the daily USD close series for the last timeframeDays days,
// ascending by date. Cached for 60 minutes.
func (s *Service) History(ctx context.Context, ticker string, timeframeDays int) ([]marketdata.HistoryPoint, error) {
	id := CanonicalID(ticker)
	if timeframeDays <= 0 {
		timeframeDays = 30
	}
	key := fmt.Sprintf("%s:%d", id, timeframeDays)

	if v, ok := s.cache.Get(marketdata.CategoryHistory, key, marketdata.CategoryHistory.TTL()); ok {
		return v.([]marketdata.HistoryPoint), nil
	}

	v, err, _ := s.group.Do("history:"+key, func() (any, error) {
		return s.fetchHistory(ctx, id, timeframeDays, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]marketdata.HistoryPoint), nil
}

func (s *Service) fetchHistory(ctx context.Context, id string, timeframeDays int, key string) ([]marketdata.HistoryPoint, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", fmt.Sprintf("%d", timeframeDays))
	params.Set("interval", "daily")

	body, err := s.transport.Send(ctx, transport.Request{
		Path:        "/coins/" + id + "/market_chart",
		Params:      params,
		SubCategory: "crypto",
		Symbol:      id,
	})
	if err != nil {
		return nil, err
	}

	var wire chartWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, marketdata.NewNotFoundError(id, "malformed market chart payload")
	}
	if len(wire.Prices) == 0 {
		return nil, marketdata.NewNotFoundError(id, "no market chart data returned")
	}

	volumeAt := make(map[int64]float64, len(wire.TotalVolumes))
	for _, v := range wire.TotalVolumes {
		volumeAt[int64(v[0])] = v[1]
	}

	points := make([]marketdata.HistoryPoint, 0, len(wire.Prices))
	for _, p := range wire.Prices {
		ms := int64(p[0])
		points = append(points, marketdata.HistoryPoint{
			Date:   time.UnixMilli(ms).UTC(),
			Close:  p[1],
			Volume: int64(volumeAt[ms]),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	s.cache.Set(marketdata.CategoryHistory, key, points)
	return points, nil
}
