package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

func TestBybit_VerifySymbolsAndRefresh(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/instruments-info":
			w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
				{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT","status":"Trading"},
				{"symbol":"DOGEEUR","baseCoin":"DOGE","quoteCoin":"EUR","status":"Trading"}
			]}}`))
		case "/v5/market/tickers":
			w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{
				"symbol":"BTCUSDT","lastPrice":"60000","ask1Price":"60001","ask1Size":"1",
				"bid1Price":"59999","bid1Size":"2","turnover24h":"2000000"
			}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	b := NewBybit(domain.Credentials{}, ts.URL, &recordingSink{})
	b.Registry().SetVolumeBases(1000, 100)
	ctx := context.Background()

	require.True(t, b.VerifySymbols(ctx))
	assert.Equal(t, 1, b.Registry().Len(), "unsupported quote is filtered")
	require.True(t, b.GetMarkets(ctx))

	btc, ok := b.Registry().Lookup("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, float64(60000), btc.Last)
	assert.Equal(t, float64(60001), btc.Ask)
	assert.Equal(t, float64(2000), btc.Volume24h)
}

func TestBybit_EnvelopeErrorIsRecovered(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	}))
	defer ts.Close()

	sink := &recordingSink{}
	b := NewBybit(domain.Credentials{}, ts.URL, sink)

	assert.False(t, b.VerifySymbols(context.Background()))
	assert.False(t, b.Alive())
	require.Len(t, sink.events, 1)
	assert.Equal(t, bybitCodeSymbols, sink.events[0].code)
}

func TestBybit_GetCandlesReversesToChronological(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/market/kline", r.URL.Path)
		require.Equal(t, "60", r.URL.Query().Get("interval"))
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			["2000","11","12","10","11.5","3","33"],
			["1000","10","11","9","10.5","5","52"]
		]}}`))
	}))
	defer ts.Close()

	b := NewBybit(domain.Credentials{}, ts.URL, &recordingSink{})
	candles := b.GetCandles(context.Background(), "BTCUSDT", "1h", 0, 2)

	require.Len(t, candles, 2)
	assert.Equal(t, int64(1000), candles[0].Time)
	assert.Equal(t, int64(2000), candles[1].Time)
	assert.Equal(t, 10.5, candles[0].Close)
}

func TestSideFromToken(t *testing.T) {
	assert.Equal(t, domain.SideBuy, sideFromToken("BUY"))
	assert.Equal(t, domain.SideBuy, sideFromToken("Buy"))
	assert.Equal(t, domain.SideBuy, sideFromToken("BID"))
	assert.Equal(t, domain.SideSell, sideFromToken("Sell"))
	assert.Equal(t, domain.SideSell, sideFromToken("ASK"))
	assert.Equal(t, domain.SideSell, sideFromToken("anything-else"))
}

func TestLadderAccumulatesTotals(t *testing.T) {
	entries := ladder([][]string{{"100", "2"}, {"101", "3"}, {"bad"}})
	require.Len(t, entries, 2)
	assert.Equal(t, float64(2), entries[0].Total)
	assert.Equal(t, float64(5), entries[1].Total)
}
