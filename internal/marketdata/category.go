package marketdata

import "time"

// Category classifies a request for cache TTL and quota accounting purposes.
type Category string

const (
	CategorySearch  Category = "search"
	CategorySymbol  Category = "symbol"
	CategoryQuote   Category = "quote"
	CategoryHistory Category = "history"
	CategoryCrypto  Category = "crypto"
)

// TTL returns the cache lifetime for the category.
func (c Category) TTL() time.Duration {
	switch c {
	case CategorySearch:
		return 24 * time.Hour
	case CategorySymbol:
		return 60 * time.Minute
	case CategoryQuote:
		return 5 * time.Minute
	case CategoryHistory:
		return 60 * time.Minute
	case CategoryCrypto:
		return 5 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Categories lists every known category, in a stable order.
func Categories() []Category {
	return []Category{CategorySearch, CategorySymbol, CategoryQuote, CategoryHistory, CategoryCrypto}
}
