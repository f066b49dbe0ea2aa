// Package bybit implements the REST half of the Exchange Adapter contract
// against the Bybit V5 kline API. Bybit has no wired level-2 feed in this
// build; Adapter satisfies adapter.CandleAdapter alone.
package bybit

import (
	"net/http"
	"time"
)

const defaultMaxCandles = 200

// Adapter is the Bybit exchange adapter.
type Adapter struct {
	httpClient *http.Client
	category   string // "linear" | "spot" | "inverse"
}

func New() *Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		category:   "linear",
	}
}

func (a *Adapter) MaxCandles() int { return defaultMaxCandles }

func (a *Adapter) DefaultRateLimitHz() float64 { return 8 }
