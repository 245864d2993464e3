package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/infrastructure/exchange"
	"github.com/vitos/crypto_market_watch/internal/usecase"
)

// printSink dumps every adapter event to stdout.
type printSink struct{}

func (printSink) Emit(exchangeName string, payload any, code int) {
	fmt.Printf("[event] %s code=%d: %v\n", exchangeName, code, payload)
}

func main() {
	name := flag.String("exchange", "binance", "exchange to probe: binance, upbit, bybit")
	symbol := flag.String("symbol", "", "symbol to dump the orderbook for")
	apiKey := flag.String("api-key", "", "optional API key")
	secretKey := flag.String("secret-key", "", "optional secret key")
	flag.Parse()

	creds := domain.Credentials{APIKey: *apiKey, SecretKey: *secretKey}
	sink := printSink{}

	var adapter interface {
		domain.Exchange
		Registry() *usecase.Registry
		Wallet() *usecase.WalletTable
	}
	switch *name {
	case "binance":
		adapter = exchange.NewBinance(creds, "", sink)
	case "upbit":
		adapter = exchange.NewUpbit(creds, "", sink)
	case "bybit":
		adapter = exchange.NewBybit(creds, "", sink)
	default:
		fmt.Printf("unknown exchange %q\n", *name)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if !adapter.VerifySymbols(ctx) {
		fmt.Println("VerifySymbols failed")
		os.Exit(1)
	}
	fmt.Printf("verified %d symbols, alive=%v\n", adapter.Registry().Len(), adapter.Alive())

	if !adapter.GetMarkets(ctx) {
		fmt.Println("GetMarkets failed")
		os.Exit(1)
	}

	snapshot := adapter.Registry().Snapshot()
	for i, t := range snapshot {
		if i >= 10 {
			fmt.Printf("... and %d more\n", len(snapshot)-i)
			break
		}
		fmt.Printf("%-14s last=%.4f ask=%.4f bid=%.4f vol24h=%.0f\n",
			t.Symbol, t.Last, t.Ask, t.Bid, t.Volume24h)
	}

	if adapter.VerifyStates(ctx) {
		states := adapter.Wallet().States()
		fmt.Printf("merged %d coin states\n", len(states))
	}

	if *symbol != "" {
		book := adapter.GetOrderbook(ctx, *symbol, 5)
		fmt.Printf("orderbook %s: %d asks / %d bids\n", book.Symbol, len(book.Asks), len(book.Bids))
		for _, e := range book.Asks {
			fmt.Printf("  ask %.4f x %.4f\n", e.Price, e.Quantity)
		}
		for _, e := range book.Bids {
			fmt.Printf("  bid %.4f x %.4f\n", e.Price, e.Quantity)
		}
	}
}
