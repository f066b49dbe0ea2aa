// Package adapter defines the contract every exchange-specific market-data
// adapter must satisfy, plus a name-keyed registry of adapter factories
// used for dynamic adapter selection.
package adapter

import (
	"context"
	"time"

	"github.com/yitech/candlestore/model/book"
	"github.com/yitech/candlestore/model/candle"
)

// ResponseTag is the seven-case response taxonomy every fetch classifies
// into, as a proper tagged variant.
type ResponseTag int

const (
	OK ResponseTag = iota
	NotFound
	RateLimited
	ServerError
	TimeoutError
	APIFailure
	NoData
)

func (t ResponseTag) String() string {
	switch t {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case TimeoutError:
		return "timeout_error"
	case APIFailure:
		return "api_failure"
	case NoData:
		return "no_data"
	default:
		return "unknown"
	}
}

// FetchResult is the outcome of a single FetchCandles call. Batch is
// populated only when Tag == OK.
type FetchResult struct {
	Tag   ResponseTag
	Batch candle.Batch
}

// CandleAdapter is the REST half of the Exchange Adapter contract: fetching
// a bounded window of historical candles and classifying the outcome into
// the response taxonomy.
type CandleAdapter interface {
	// FetchCandles requests candles for product over [start, end] at the
	// given granularity and classifies the response. It must never return a
	// non-nil error for ordinary request failures — those are folded into
	// FetchResult.Tag. A non-nil error indicates a programming/invariant
	// violation (e.g. start > end).
	FetchCandles(ctx context.Context, product string, start, end time.Time, granularity time.Duration) (FetchResult, error)

	// MaxCandles is the per-exchange cap on candles returned by one call.
	MaxCandles() int

	// DefaultRateLimitHz is the adapter's suggested inter-request rate.
	DefaultRateLimitHz() float64
}

// LevelUpdate is one per-price-level update from a level-2 delta message.
type LevelUpdate struct {
	Side        book.Side
	Price       float64
	NewQuantity float64
}

// Level2Message carries the updates for a single product from one delta
// event.
type Level2Message struct {
	Product string
	Updates []LevelUpdate
}

// Subscription is the scoped-acquisition handle for a live level-2
// subscription. Close unsubscribes and tears down the transport; it is
// safe to call more than once.
type Subscription interface {
	Messages() <-chan Level2Message
	Close() error
}

// StreamAdapter is the WebSocket half of the Exchange Adapter contract.
type StreamAdapter interface {
	SubscribeLevel2(ctx context.Context, products []string) (Subscription, error)
}

// Adapter is the full capability set an exchange adapter may implement.
// Implementations that cannot support streaming (no level-2 feed available)
// still satisfy CandleAdapter alone; callers discover streaming support by
// type-asserting to StreamAdapter rather than calling a stub that errors at
// call time.
type Adapter interface {
	CandleAdapter
	StreamAdapter
}
