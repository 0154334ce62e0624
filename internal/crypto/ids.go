package crypto

import "strings"

// canonicalIDs maps short tickers to the provider's canonical coin ids.
// Unknown tickers pass through unchanged and are treated as already canonical.
var canonicalIDs = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"usdt":  "tether",
	"bnb":   "binancecoin",
	"sol":   "solana",
	"usdc":  "usd-coin",
	"xrp":   "ripple",
	"ada":   "cardano",
	"doge":  "dogecoin",
	"avax":  "avalanche-2",
	"dot":   "polkadot",
	"link":  "chainlink",
	"matic": "matic-network",
	"ltc":   "litecoin",
	"uni":   "uniswap",
	"xlm":   "stellar",
	"atom":  "cosmos",
	"xmr":   "monero",
	"etc":   "ethereum-classic",
	"bch":   "bitcoin-cash",
	"algo":  "algorand",
	"near":  "near",
	"fil":   "filecoin",
	"vet":   "vechain",
	"shib":  "shiba-inu",
}

// CanonicalID resolves a short ticker like "btc" to the provider id
// ("bitcoin"). Input that is not in the table is lowercased and returned as is.
func CanonicalID(ticker string) string {
	t := strings.ToLower(strings.TrimSpace(ticker))
	if id, ok := canonicalIDs[t]; ok {
		return id
	}
	return t
}
