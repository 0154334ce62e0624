// Package securities implements the equity lookup operations: quote, history,
// free-text search, and symbol detail. Every operation checks the response
// cache first, then the quota-gated retrying transport, and shapes the upstream
// payload into the normalized records before caching.
package securities

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/finboard/finboard/internal/cache"
	"github.com/finboard/finboard/internal/marketdata"
	"github.com/finboard/finboard/internal/transport"
)

// allowedExchanges is the fixed allow-list applied to search results.
var allowedExchanges = map[string]bool{
	"NYSE":   true,
	"NASDAQ": true,
	"AMEX":   true,
}

// unsupportedSuffixes are exchange suffixes the quote provider cannot serve;
// symbols carrying one are rejected before any cache or network activity.
var unsupportedSuffixes = []string{".L", ".T", ".SS", ".DE", ".HK", ".PA"}

// searchTermFloor is the minimum query length before the transport is called.
const searchTermFloor = 3

// Service is the securities lookup front end.
type Service struct {
	transport *transport.RetryingTransport
	cache     *cache.ResponseCache
	log       zerolog.Logger
	group     singleflight.Group
}

// New creates a securities Service on top of a transport and shared cache.
func New(tr *transport.RetryingTransport, c *cache.ResponseCache, log zerolog.Logger) *Service {
	return &Service{
		transport: tr,
		cache:     c,
		log:       log.With().Str("component", "securities").Logger(),
	}
}

// Quote returns the current quote for a symbol. Cached for 5 minutes.
func (s *Service) Quote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	symbol = marketdata.NormalizeSymbol(symbol)
	if v, ok := s.cache.Get(marketdata.CategoryQuote, symbol, marketdata.CategoryQuote.TTL()); ok {
		return v.(marketdata.Quote), nil
	}

	// Concurrent misses for the same symbol share one outbound call.
	v, err, _ := s.group.Do("quote:"+symbol, func() (any, error) {
		return s.fetchQuote(ctx, symbol)
	})
	if err != nil {
		return marketdata.Quote{}, err
	}
	return v.(marketdata.Quote), nil
}

func (s *Service) fetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	body, err := s.transport.Send(ctx, transport.Request{
		Path:        "/quote/" + symbol,
		SubCategory: "quote",
		Symbol:      symbol,
	})
	if err != nil {
		return marketdata.Quote{}, err
	}

	var wire []quoteWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return marketdata.Quote{}, marketdata.NewNotFoundError(symbol, "malformed quote payload")
	}
	if len(wire) == 0 {
		return marketdata.Quote{}, marketdata.NewNotFoundError(symbol, "no quote data returned")
	}

	q := marketdata.Quote{
		Symbol:    marketdata.NormalizeSymbol(wire[0].Symbol),
		Name:      wire[0].Name,
		Price:     wire[0].Price,
		Change:    wire[0].ChangesPercentage,
		Volume:    wire[0].Volume,
		MarketCap: wire[0].MarketCap,
		PE:        wire[0].PE,
		FetchedAt: time.Now(),
	}
	if err := marketdata.ValidateQuote(&q); err != nil {
		return marketdata.Quote{}, marketdata.NewNotFoundError(symbol, err.Error())
	}

	s.cache.Set(marketdata.CategoryQuote, symbol, q)
	return q, nil
}

// History returns the daily close series for the last timeframeDays days,
// ascending by date. Cached for 60 minutes.
func (s *Service) History(ctx context.Context, symbol string, timeframeDays int) ([]marketdata.HistoryPoint, error) {
	symbol = marketdata.NormalizeSymbol(symbol)
	if timeframeDays <= 0 {
		timeframeDays = 30
	}
	key := fmt.Sprintf("%s:%d", symbol, timeframeDays)

	if v, ok := s.cache.Get(marketdata.CategoryHistory, key, marketdata.CategoryHistory.TTL()); ok {
		return v.([]marketdata.HistoryPoint), nil
	}

	v, err, _ := s.group.Do("history:"+key, func() (any, error) {
		return s.fetchHistory(ctx, symbol, timeframeDays, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]marketdata.HistoryPoint), nil
}

func (s *Service) fetchHistory(ctx context.Context, symbol string, timeframeDays int, key string) ([]marketdata.HistoryPoint, error) {
	params := url.Values{}
	params.Set("timeseries", fmt.Sprintf("%d", timeframeDays))

	body, err := s.transport.Send(ctx, transport.Request{
		Path:        "/historical-price-full/" + symbol,
		Params:      params,
		SubCategory: "history",
		Symbol:      symbol,
	})
	if err != nil {
		return nil, err
	}

	var wire historyWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, marketdata.NewNotFoundError(symbol, "malformed history payload")
	}
	if len(wire.Historical) == 0 {
		return nil, marketdata.NewNotFoundError(symbol, "no history data returned")
	}

	points := make([]marketdata.HistoryPoint, 0, len(wire.Historical))
	for _, h := range wire.Historical {
		date, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			continue // skip rows with unparseable dates rather than failing the series
		}
		points = append(points, marketdata.HistoryPoint{Date: date, Close: h.Close, Volume: h.Volume})
	}
	if len(points) == 0 {
		return nil, marketdata.NewNotFoundError(symbol, "no usable history rows")
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	s.cache.Set(marketdata.CategoryHistory, key, points)
	return points, nil
}

// SearchByName searches instruments by free text, filtered to the exchange
// allow-list. Terms shorter than three characters return an empty result with
// zero transport calls. Cached for 24 hours.
func (s *Service) SearchByName(ctx context.Context, term string) ([]marketdata.SearchResult, error) {
	term = strings.TrimSpace(term)
	if len(term) < searchTermFloor {
		return []marketdata.SearchResult{}, nil
	}
	key := strings.ToLower(term)

	if v, ok := s.cache.Get(marketdata.CategorySearch, key, marketdata.CategorySearch.TTL()); ok {
		return v.([]marketdata.SearchResult), nil
	}

	v, err, _ := s.group.Do("search:"+key, func() (any, error) {
		return s.fetchSearch(ctx, term, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]marketdata.SearchResult), nil
}

func (s *Service) fetchSearch(ctx context.Context, term, key string) ([]marketdata.SearchResult, error) {
	params := url.Values{}
	params.Set("query", term)
	params.Set("limit", "50")

	body, err := s.transport.Send(ctx, transport.Request{
		Path:        "/search",
		Params:      params,
		SubCategory: "search",
		Symbol:      term,
	})
	if err != nil {
		return nil, err
	}

	var wire []searchWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, marketdata.NewNotFoundError(term, "malformed search payload")
	}

	upperTerm := strings.ToUpper(term)
	results := make([]marketdata.SearchResult, 0, len(wire))
	for _, w := range wire {
		if !allowedExchanges[w.ExchangeShortName] {
			continue
		}
		results = append(results, marketdata.SearchResult{
			Symbol:   marketdata.NormalizeSymbol(w.Symbol),
			Name:     w.Name,
			Exchange: w.ExchangeShortName,
		})
	}

	// Exact symbol match first, then prefix matches, then lexicographic.
	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := searchRank(results[i].Symbol, upperTerm), searchRank(results[j].Symbol, upperTerm)
		if ri != rj {
			return ri < rj
		}
		return results[i].Symbol < results[j].Symbol
	})

	s.cache.Set(marketdata.CategorySearch, key, results)
	return results, nil
}

func searchRank(symbol, upperTerm string) int {
	switch {
	case symbol == upperTerm:
		return 0
	case strings.HasPrefix(symbol, upperTerm):
		return 1
	default:
		return 2
	}
}

// SearchBySymbol returns a detailed record combining quote and company
// profile. Symbols on unsupported exchanges are rejected before any cache or
// network activity. Cached for 60 minutes.
func (s *Service) SearchBySymbol(ctx context.Context, symbol string) (marketdata.SymbolDetail, error) {
	symbol = marketdata.NormalizeSymbol(symbol)
	for _, suffix := range unsupportedSuffixes {
		if strings.HasSuffix(symbol, suffix) {
			return marketdata.SymbolDetail{}, marketdata.NewUnsupportedExchangeError(symbol,
				fmt.Sprintf("exchange suffix %s is not supported", suffix))
		}
	}

	if v, ok := s.cache.Get(marketdata.CategorySymbol, symbol, marketdata.CategorySymbol.TTL()); ok {
		return v.(marketdata.SymbolDetail), nil
	}

	v, err, _ := s.group.Do("symbol:"+symbol, func() (any, error) {
		return s.fetchDetail(ctx, symbol)
	})
	if err != nil {
		return marketdata.SymbolDetail{}, err
	}
	return v.(marketdata.SymbolDetail), nil
}

func (s *Service) fetchDetail(ctx context.Context, symbol string) (marketdata.SymbolDetail, error) {
	quote, err := s.fetchQuote(ctx, symbol)
	if err != nil {
		return marketdata.SymbolDetail{}, err
	}

	body, err := s.transport.Send(ctx, transport.Request{
		Path:        "/profile/" + symbol,
		SubCategory: "symbol",
		Symbol:      symbol,
	})
	if err != nil {
		return marketdata.SymbolDetail{}, err
	}

	var wire []profileWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return marketdata.SymbolDetail{}, marketdata.NewNotFoundError(symbol, "malformed profile payload")
	}
	if len(wire) == 0 {
		return marketdata.SymbolDetail{}, marketdata.NewNotFoundError(symbol, "no profile data returned")
	}

	detail := marketdata.SymbolDetail{
		Quote:       quote,
		Industry:    wire[0].Industry,
		Sector:      wire[0].Sector,
		Exchange:    wire[0].ExchangeShortName,
		Description: wire[0].Description,
	}
	if detail.Name == "" {
		detail.Name = wire[0].CompanyName
	}

	s.cache.Set(marketdata.CategorySymbol, symbol, detail)
	return detail, nil
}
