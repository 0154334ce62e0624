// Command stubs serves the fake upstream providers for local development.
// Point the tracker's provider base URLs here to run without live API keys.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/finboard/finboard/internal/stubs"
	"github.com/finboard/finboard/pkg/logger"
)

func main() {
	stocksAddr := flag.String("stocks-addr", ":8101", "listen address for the equities stub")
	cryptoAddr := flag.String("crypto-addr", ":8102", "listen address for the crypto stub")
	rateLimitAfter := flag.Int("rate-limit-after", 0, "answer 429 after this many requests per stub (0 = never)")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Pretty: true})

	go func() {
		log.Info().Str("addr", *stocksAddr).Msg("equities stub listening")
		if err := http.ListenAndServe(*stocksAddr, stubs.NewSecuritiesServer(*rateLimitAfter)); err != nil {
			log.Error().Err(err).Msg("equities stub failed")
			os.Exit(1)
		}
	}()

	log.Info().Str("addr", *cryptoAddr).Msg("crypto stub listening")
	if err := http.ListenAndServe(*cryptoAddr, stubs.NewCryptoServer(*rateLimitAfter)); err != nil {
		log.Error().Err(err).Msg("crypto stub failed")
		os.Exit(1)
	}
}
