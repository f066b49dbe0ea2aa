// Package backfill implements the historical backfill engine: a
// multi-symbol, rate-limited, fault-tolerant fetch pipeline that discovers
// each symbol's first available candle via bounded bisection, advances
// through time windows, classifies responses into a fixed taxonomy, and
// emits an ordered stream of OHLCV batches.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/yitech/candlestore/adapter"
	"github.com/yitech/candlestore/internal/bisection"
	"github.com/yitech/candlestore/model/candle"
)

// ValidGranularities is the closed set of supported bucket widths, in
// seconds.
var ValidGranularities = map[time.Duration]bool{
	60 * time.Second:     true,
	5 * time.Minute:      true,
	15 * time.Minute:     true,
	time.Hour:            true,
	6 * time.Hour:        true,
	24 * time.Hour:       true,
}

// DefaultStartDate is the default start date used when a Request omits one.
var DefaultStartDate = time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)

// Request describes one symbol to backfill.
type Request struct {
	Product     string
	Start       *time.Time // nil uses DefaultStartDate
	End         *time.Time // nil uses now
	Granularity time.Duration
}

// Engine runs the per-symbol discover/stream/done state machine across a
// set of requests, emitting an ordered stream of candle.Batch values.
type Engine struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New returns an Engine that logs via logger. now defaults to time.Now and
// exists as a seam for deterministic tests.
func New(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger, now: time.Now}
}

// WithClock overrides the engine's notion of "now", for tests that need to
// control month-boundary / clamp-to-now behavior.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Fetch emits an ordered stream of candle.Batch covering every request in
// requests, processed strictly sequentially. The returned batch channel is
// closed once every request has reached DONE or the context is cancelled;
// the err channel carries invariant violations (start > end after
// normalization) for the request that triggered them — the engine moves on
// to the next request rather than aborting the whole run, since invariant
// violations are scoped to one symbol's date range.
func (e *Engine) Fetch(ctx context.Context, ad adapter.CandleAdapter, requests []Request) (<-chan candle.Batch, <-chan error) {
	out := make(chan candle.Batch)
	errs := make(chan error, len(requests))

	go func() {
		defer close(out)
		defer close(errs)

		limiter := newRateLimiter(ad.DefaultRateLimitHz())

		for _, req := range requests {
			if ctx.Err() != nil {
				return
			}
			if err := e.fetchOne(ctx, ad, req, limiter, out); err != nil {
				errs <- err
			}
		}
	}()

	return out, errs
}

// fetchOne runs the DISCOVER -> STREAM -> DONE state machine for a single
// request.
func (e *Engine) fetchOne(ctx context.Context, ad adapter.CandleAdapter, req Request, limiter *rateLimiter, out chan<- candle.Batch) error {
	runID := uuid.NewString()
	log := e.logger.With().Str("product", req.Product).Str("run_id", runID).Logger()

	start := DefaultStartDate
	if req.Start != nil {
		start = *req.Start
	}
	now := e.now()
	end := now
	if req.End != nil && req.End.Before(now) {
		end = *req.End
	}

	if start.Equal(end) {
		log.Info().Msg("start == end, nothing to backfill")
		return nil
	}
	if start.After(end) {
		return fmt.Errorf("backfill: invariant violation for %s: start %s is after end %s", req.Product, start, end)
	}

	log.Info().Time("start", start).Time("end", end).Msg("seeking first occurrence of data")

	firstTS, found := e.discover(ctx, ad, req.Product, start, end, limiter, log)
	if !found {
		log.Error().Msg("no_data found within discovery budget for symbol; terminating")
		return nil
	}

	cursor := time.Unix(firstTS, 0).UTC()
	breaker := newBreaker(req.Product)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if cursor.After(end) {
			return nil
		}

		windowEnd := minTime(cursor.Add(time.Duration(ad.MaxCandles())*req.Granularity), end)

		result, err := fetchWithBreaker(ctx, breaker, ad, req.Product, cursor, windowEnd, req.Granularity)
		if err != nil {
			// circuit open: the endpoint is considered persistently down for
			// this window; treat like a skip-and-advance failure.
			log.Warn().Err(err).Msg("circuit open, skipping window")
			cursor = advanceByWindow(cursor, ad.MaxCandles(), req.Granularity)
			continue
		}

		log.WithLevel(logLevel(result.Tag)).Str("tag", result.Tag.String()).Msg("window classified")

		switch result.Tag {
		case adapter.NotFound:
			return nil

		case adapter.RateLimited, adapter.ServerError:
			attempt := int(breaker.Counts().ConsecutiveFailures)
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil
			}
			continue // retry same window, cursor unchanged

		case adapter.TimeoutError, adapter.APIFailure:
			cursor = advanceByWindow(cursor, ad.MaxCandles(), req.Granularity)

		case adapter.NoData:
			cursor = cursor.Add(req.Granularity)

		case adapter.OK:
			candle.SortAscending(result.Batch.Data)
			if err := result.Batch.Validate(); err != nil {
				log.Error().Err(err).Msg("malformed batch, skipping")
				cursor = advanceByWindow(cursor, ad.MaxCandles(), req.Granularity)
				continue
			}

			newCursor := time.Unix(result.Batch.MaxTime(), 0).UTC().Add(req.Granularity)
			if !newCursor.After(cursor) {
				newCursor = cursor.Add(req.Granularity)
				log.Warn().Msg("cursor stuck, forcing one granularity step")
			}
			cursor = newCursor

			select {
			case out <- result.Batch:
			case <-ctx.Done():
				return nil
			}

			limiter.wait(ctx)
		}

		if sameMonth(cursor, e.now()) {
			log.Info().Msg("reached current month, switching to next symbol")
			return nil
		}
	}
}

// discover runs bounded bisection to find the earliest discoverable
// timestamp with data. Each probe issues a real request through ad and
// waits on the rate limiter after an OK or no_data response; failed probes
// are not throttled.
func (e *Engine) discover(ctx context.Context, ad adapter.CandleAdapter, product string, start, end time.Time, limiter *rateLimiter, log zerolog.Logger) (int64, bool) {
	condition := func(ts int64) bool {
		if ctx.Err() != nil {
			return false
		}
		probeStart := time.Unix(ts, 0).UTC()
		probeEnd := probeStart.Add(time.Duration(ad.MaxCandles()) * time.Minute)
		result, err := ad.FetchCandles(ctx, product, probeStart, probeEnd, time.Minute)
		if err != nil {
			return false
		}
		if result.Tag == adapter.OK || result.Tag == adapter.NoData {
			limiter.wait(ctx)
		}
		return result.Tag == adapter.OK && len(result.Batch.Data) > 0
	}

	ts, err := bisection.FirstOccurrence(condition, start.Unix(), end.Unix(), bisection.MaxDepth)
	if err != nil {
		log.Error().Err(err).Msg("invalid discovery range")
		return 0, false
	}
	if ts == bisection.None {
		return 0, false
	}
	return ts, true
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func advanceByWindow(cursor time.Time, maxCandles int, granularity time.Duration) time.Time {
	return cursor.Add(time.Duration(maxCandles) * granularity)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// sleepBackoff waits with exponential backoff (1s, 2s, 4s, ... capped at
// 30s) before a retry of the same window.
func sleepBackoff(ctx context.Context, attempt int) error {
	delay := time.Second << uint(min(attempt, 5))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchWithBreaker executes one classified fetch through breaker. Transient
// tags (server_error, timeout_error, rate_limited) count as breaker
// failures even though they are reported back to the caller as ordinary
// results — the breaker only changes behavior once it trips. When the
// breaker is open, fetchWithBreaker returns an error and the caller treats
// the window as a forced skip-and-advance rather than retrying forever
// against a dead endpoint.
func fetchWithBreaker(ctx context.Context, breaker *gobreaker.CircuitBreaker, ad adapter.CandleAdapter, product string, start, end time.Time, granularity time.Duration) (adapter.FetchResult, error) {
	v, err := breaker.Execute(func() (interface{}, error) {
		res, ferr := ad.FetchCandles(ctx, product, start, end, granularity)
		if ferr != nil {
			return adapter.FetchResult{}, ferr
		}
		if res.Tag == adapter.ServerError || res.Tag == adapter.TimeoutError || res.Tag == adapter.RateLimited {
			return res, fmt.Errorf("backfill: transient %s", res.Tag)
		}
		return res, nil
	})
	if res, ok := v.(adapter.FetchResult); ok {
		// The inner function ran (breaker closed) — report its
		// classification regardless of whether it counted as a failure.
		return res, nil
	}
	return adapter.FetchResult{}, err
}

func newBreaker(product string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "backfill:" + product,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
