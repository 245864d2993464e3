package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

func TestUpbit_VerifySymbolsParsesMarketCodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/market/all", r.URL.Path)
		w.Write([]byte(`[{"market":"KRW-BTC"},{"market":"BTC-ETH"},{"market":"EUR-ADA"}]`))
	}))
	defer ts.Close()

	u := NewUpbit(domain.Credentials{}, ts.URL, &recordingSink{})
	require.True(t, u.VerifySymbols(context.Background()))
	assert.Equal(t, 2, u.Registry().Len())

	btc, ok := u.Registry().Lookup("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, "BTC", btc.Base)
	assert.Equal(t, "KRW", btc.Quote)
}

func TestUpbit_GetMarketsBridgesBTCQuote(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/market/all":
			w.Write([]byte(`[{"market":"KRW-BTC"},{"market":"BTC-ETH"}]`))
		case "/v1/ticker":
			require.True(t, strings.Contains(r.URL.RawQuery, "KRW-BTC"))
			w.Write([]byte(`[
				{"market":"KRW-BTC","trade_price":90000000,"acc_trade_price_24h":1000000},
				{"market":"BTC-ETH","trade_price":0.05,"acc_trade_price_24h":10}
			]`))
		case "/v1/orderbook":
			w.Write([]byte(`[
				{"market":"KRW-BTC","orderbook_units":[{"ask_price":90000100,"bid_price":89999900,"ask_size":1,"bid_size":2}]},
				{"market":"BTC-ETH","orderbook_units":[{"ask_price":0.051,"bid_price":0.049,"ask_size":3,"bid_size":4}]}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	u := NewUpbit(domain.Credentials{}, ts.URL, &recordingSink{})
	u.Registry().SetRates(1350, 90_000_000)
	u.Registry().SetVolumeBases(1000, 100)
	ctx := context.Background()

	require.True(t, u.VerifySymbols(ctx))
	require.True(t, u.GetMarkets(ctx))

	// KRW market passes through unbridged
	krw, _ := u.Registry().Lookup("KRW-BTC")
	assert.Equal(t, float64(90_000_000), krw.Last)
	assert.Equal(t, float64(90_000_100), krw.Ask)
	assert.Equal(t, float64(1000), krw.Volume24h)

	// BTC market is bridged through the fiat BTC price
	eth, _ := u.Registry().Lookup("BTC-ETH")
	assert.InDelta(t, 0.05*90_000_000, eth.Last, 1e-3)
	assert.InDelta(t, 0.051*90_000_000, eth.Ask, 1e-3)
}

func TestUpbit_AuthTokenShape(t *testing.T) {
	u := NewUpbit(domain.Credentials{APIKey: "k", SecretKey: "s"}, "http://127.0.0.1:0", &recordingSink{})

	token := u.authToken("currency=BTC")
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3, "header.payload.signature")
	assert.NotEmpty(t, parts[2])

	// no query hash claim without a query
	bare := u.authToken("")
	assert.NotEqual(t, token, bare)
}

func TestUpbit_GetOrderbookLimitsDepth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"market":"KRW-BTC","orderbook_units":[
			{"ask_price":101,"bid_price":99,"ask_size":1,"bid_size":1},
			{"ask_price":102,"bid_price":98,"ask_size":2,"bid_size":2},
			{"ask_price":103,"bid_price":97,"ask_size":3,"bid_size":3}
		]}]`))
	}))
	defer ts.Close()

	u := NewUpbit(domain.Credentials{}, ts.URL, &recordingSink{})
	book := u.GetOrderbook(context.Background(), "KRW-BTC", 2)

	require.Len(t, book.Asks, 2)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, float64(3), book.Asks[1].Total)
}
