package securities

// Wire shapes for the securities provider. Fields the core does not consume
// are omitted; the validating parse in service.go turns these into the
// normalized records or a typed error, so no unshaped payload escapes.

type quoteWire struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	ChangesPercentage float64 `json:"changesPercentage"`
	Volume            int64   `json:"volume"`
	MarketCap         float64 `json:"marketCap"`
	PE                float64 `json:"pe"`
}

type historyWire struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string  `json:"date"` // 2006-01-02
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"historical"`
}

type searchWire struct {
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	ExchangeShortName string `json:"exchangeShortName"`
}

type profileWire struct {
	Symbol            string `json:"symbol"`
	CompanyName       string `json:"companyName"`
	Industry          string `json:"industry"`
	Sector            string `json:"sector"`
	ExchangeShortName string `json:"exchangeShortName"`
	Description       string `json:"description"`
}
