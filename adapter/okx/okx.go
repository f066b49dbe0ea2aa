// Package okx implements the REST half of the Exchange Adapter contract
// against the OKX history-candles API. OKX has no wired level-2 feed in
// this build; Adapter satisfies adapter.CandleAdapter alone.
package okx

import (
	"net/http"
	"time"
)

const defaultMaxCandles = 100

// Adapter is the OKX exchange adapter.
type Adapter struct {
	httpClient *http.Client
}

func New() *Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) MaxCandles() int { return defaultMaxCandles }

func (a *Adapter) DefaultRateLimitHz() float64 { return 8 }
