package usecase

import (
	"math"
	"strings"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

// volumeWindowMs is the minimum spacing between two volume samples used to
// derive the one-minute delta.
const volumeWindowMs = 60_000

// BridgeScalar returns the factor that converts a vendor price quoted in
// the given currency into the display fiat. Stable-quoted markets use the
// fiat-per-USDT rate, BTC-quoted markets the fiat BTC price; anything else
// is assumed to be quoted in the display fiat already.
func BridgeScalar(quote string, exchgRate, btcFiat float64) float64 {
	switch strings.ToUpper(quote) {
	case "USDT", "USDC":
		return exchgRate
	case "BTC":
		return btcFiat
	default:
		return 1
	}
}

// applyVolume rescales a raw cumulative 24h quote volume into display-fiat
// units and reconstructs a one-minute rate by differencing two samples
// spaced at least volumeWindowMs apart. Samples arriving inside the window
// leave Volume1m, Previous24h and SampledAt untouched so a fast refresh
// cannot corrupt the once-per-minute delta. The very first sample has no
// baseline and yields Volume1m 0.
func applyVolume(t *domain.Ticker, bridged float64, nowMs int64, base24h, base1m float64) {
	if base24h <= 0 {
		base24h = 1
	}
	if base1m <= 0 {
		base1m = 1
	}

	t.Volume24h = math.Floor(bridged / base24h)

	if nowMs <= t.SampledAt+volumeWindowMs {
		return
	}
	var delta float64
	if t.Previous24h > 0 {
		delta = bridged - t.Previous24h
	}
	if delta < 0 {
		// the vendor's rolling 24h window can shrink between samples
		delta = 0
	}
	t.Volume1m = math.Floor(delta / base1m)
	t.Previous24h = bridged
	t.SampledAt = nowMs
}
