package marketdata

import (
	"fmt"
	"strings"
	"time"
)

// Quote is the normalized current-price record returned by both providers.
// Provider-dependent fields (MarketCap, PE) are zero when the upstream omits them.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"` // percent change over the last session/24h
	Volume    int64     `json:"volume"`
	MarketCap float64   `json:"market_cap"`
	PE        float64   `json:"pe"`
	FetchedAt time.Time `json:"fetched_at"`
}

// HistoryPoint is one day in a historical price series.
type HistoryPoint struct {
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// SearchResult is one row of a free-text search.
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// SymbolDetail combines a quote with company profile data.
type SymbolDetail struct {
	Quote
	Industry    string `json:"industry"`
	Sector      string `json:"sector"`
	Exchange    string `json:"exchange"`
	Description string `json:"description"`
}

// TrackedInstrument is one stock or crypto item in a user's watchlist.
// ID is the symbol for stocks and the canonical provider id for crypto.
type TrackedInstrument struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	Volume    int64   `json:"volume"`
	MarketCap float64 `json:"market_cap"`
	PE        float64 `json:"pe"`
}

// NormalizeSymbol uppercases and trims an equity symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateQuote rejects quotes that would poison the cache (fail-closed).
func ValidateQuote(q *Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	q.Symbol = NormalizeSymbol(q.Symbol)
	if q.Symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if q.Price <= 0 {
		return fmt.Errorf("invalid price: %.4f", q.Price)
	}
	if q.Volume < 0 {
		return fmt.Errorf("negative volume: %d", q.Volume)
	}
	return nil
}
