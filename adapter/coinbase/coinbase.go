// Package coinbase is the fully-implemented reference Exchange Adapter. It
// satisfies both halves of adapter.Adapter: REST OHLCV backfill and a live
// level-2 WebSocket feed.
package coinbase

import (
	"net/http"
	"time"

	"github.com/yitech/candlestore/config"
)

const (
	candlesURL = "https://api.exchange.coinbase.com/products/%s/candles"
	wsURL      = "wss://advanced-trade-ws.coinbase.com"

	// maxCandles is Coinbase's documented cap on candles per request.
	maxCandles = 300

	requestTimeout = 10 * time.Second
)

// Adapter is the Coinbase exchange adapter.
type Adapter struct {
	cfg        config.Config
	httpClient *http.Client
}

// New returns a Coinbase adapter that identifies itself with cfg's
// contact/version headers on every REST request.
func New(cfg config.Config) *Adapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (a *Adapter) MaxCandles() int { return maxCandles }

// DefaultRateLimitHz matches the ≈8 Hz the backfill engine defaults to when
// an adapter does not need a tighter limit.
func (a *Adapter) DefaultRateLimitHz() float64 { return 8 }
