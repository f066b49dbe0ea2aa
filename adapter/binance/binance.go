// Package binance implements the REST half of the Exchange Adapter contract
// against the Binance spot klines API. Binance has no wired level-2 feed in
// this build, so Adapter satisfies adapter.CandleAdapter alone — a type
// assertion to adapter.StreamAdapter fails instead of reaching a stub that
// errors at call time.
package binance

import (
	"net/http"
	"time"
)

const defaultMaxCandles = 1000

// Adapter is the Binance exchange adapter.
type Adapter struct {
	httpClient *http.Client
}

// New returns a Binance adapter using an http.Client with a conservative
// fixed timeout.
func New() *Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) MaxCandles() int { return defaultMaxCandles }

func (a *Adapter) DefaultRateLimitHz() float64 { return 8 }
