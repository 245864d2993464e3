package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/infrastructure/events"
	"github.com/vitos/crypto_market_watch/internal/infrastructure/exchange"
	"github.com/vitos/crypto_market_watch/internal/infrastructure/logger"
	"github.com/vitos/crypto_market_watch/internal/infrastructure/storage"
	"github.com/vitos/crypto_market_watch/internal/web"
)

type Config struct {
	Exchanges []struct {
		Name       string `yaml:"name"`
		APIKey     string `yaml:"api_key"`
		SecretKey  string `yaml:"secret_key"`
		PassPhrase string `yaml:"pass_phrase"`

		// ExchgRate is the display fiat per USDT; BTCSymbol, when set,
		// names the USDT market whose price refreshes the fiat BTC rate.
		ExchgRate     float64 `yaml:"exchg_rate"`
		BTCSymbol     string  `yaml:"btc_symbol"`
		Volume24hBase float64 `yaml:"volume24h_base"`
		Volume1mBase  float64 `yaml:"volume1m_base"`
		Stream        bool    `yaml:"stream"`
	} `yaml:"exchanges"`
	Refresh struct {
		MarketsMs   int `yaml:"markets_ms"`
		StatesEvery int `yaml:"states_every"`
	} `yaml:"refresh"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func buildAdapter(name string, creds domain.Credentials, sink domain.EventSink) (web.Adapter, error) {
	switch name {
	case "binance":
		return exchange.NewBinance(creds, "", sink), nil
	case "upbit":
		return exchange.NewUpbit(creds, "", sink), nil
	case "bybit":
		return exchange.NewBybit(creds, "", sink), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
}

func main() {
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "watch.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	sink := events.NewZapSink(log, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var adapters []web.Adapter
	for _, exCfg := range cfg.Exchanges {
		creds := domain.Credentials{
			APIKey:     exCfg.APIKey,
			SecretKey:  exCfg.SecretKey,
			PassPhrase: exCfg.PassPhrase,
		}
		adapter, err := buildAdapter(exCfg.Name, creds, sink)
		if err != nil {
			log.Fatal("Failed to build adapter", zap.Error(err))
		}
		adapter.Registry().SetRates(exCfg.ExchgRate, 0)
		adapter.Registry().SetVolumeBases(exCfg.Volume24hBase, exCfg.Volume1mBase)

		// seed the wallet table with the last persisted flags
		if states, err := store.LoadCoinStates(ctx, adapter.Name()); err != nil {
			log.Error("Failed to load coin states", zap.String("exchange", adapter.Name()), zap.Error(err))
		} else if len(states) > 0 {
			adapter.Wallet().Restore(states)
		}
		adapters = append(adapters, adapter)
	}

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, adapters, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server stopped", zap.Error(err))
		}
	}()

	// one independent refresh loop per exchange; registries are never
	// shared across these goroutines
	for i, adapter := range adapters {
		exCfg := cfg.Exchanges[i]
		go func(a web.Adapter) {
			runExchange(ctx, a, exCfg.ExchgRate, exCfg.BTCSymbol, exCfg.Stream, cfg, store, log)
		}(adapter)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown failed", zap.Error(err))
	}
}

func runExchange(
	ctx context.Context,
	adapter web.Adapter,
	exchgRate float64,
	btcSymbol string,
	stream bool,
	cfg *Config,
	store *storage.SQLiteStore,
	log *zap.Logger,
) {
	name := adapter.Name()

	// symbol verification must succeed before anything else runs
	for !adapter.VerifySymbols(ctx) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
	log.Info("Symbols verified", zap.String("exchange", name), zap.Int("count", adapter.Registry().Len()))

	refreshStates := func() {
		if btcSymbol != "" {
			if p := adapter.GetPrice(ctx, btcSymbol); p > 0 {
				rate := exchgRate
				if rate <= 0 {
					rate = 1
				}
				adapter.Registry().SetRates(0, p*rate)
			}
		}
		if !adapter.VerifyStates(ctx) {
			return
		}
		if err := store.SaveCoinStates(ctx, name, adapter.Wallet().States()); err != nil {
			log.Error("Failed to persist coin states", zap.String("exchange", name), zap.Error(err))
		}
	}
	refreshStates()

	var tickerStream *exchange.TickerStream
	if stream {
		if b, ok := adapter.(*exchange.Binance); ok {
			tickerStream = exchange.NewBinanceStream(b, "")
			if err := tickerStream.Connect(adapter.Registry().ActiveSymbols()); err != nil {
				log.Error("Failed to connect stream", zap.String("exchange", name), zap.Error(err))
			}
			defer tickerStream.Close()
		}
	}

	intervalMs := cfg.Refresh.MarketsMs
	if intervalMs <= 0 {
		intervalMs = 5000
	}
	statesEvery := cfg.Refresh.StatesEvery
	if statesEvery <= 0 {
		statesEvery = 60
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		adapter.GetMarkets(ctx)
		cycle++
		if cycle%statesEvery == 0 {
			refreshStates()
		}
	}
}
