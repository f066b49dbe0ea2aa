package backfill

import (
	"context"
	"sync"

	"github.com/yitech/candlestore/adapter"
	"github.com/yitech/candlestore/model/candle"
)

// FetchMany fans Fetch out across multiple adapters concurrently, one
// goroutine per adapter, each running its own sequential request queue.
//
// byAdapter maps an adapter name (as used with an adapter.Registry) to the
// requests that should run against it. The returned channel carries every
// batch from every adapter, in no particular cross-adapter order; within a
// single adapter's requests, ordering is preserved. The error channel is
// buffered to hold one error per request across all adapters.
func (e *Engine) FetchMany(ctx context.Context, adapters map[string]adapter.CandleAdapter, byAdapter map[string][]Request) (<-chan candle.Batch, <-chan error) {
	out := make(chan candle.Batch)
	errs := make(chan error, totalRequests(byAdapter))

	var wg sync.WaitGroup
	for name, requests := range byAdapter {
		ad, ok := adapters[name]
		if !ok {
			errs <- adapterNotFoundError(name)
			continue
		}

		wg.Add(1)
		go func(ad adapter.CandleAdapter, requests []Request) {
			defer wg.Done()

			batches, batchErrs := e.Fetch(ctx, ad, requests)
			for batches != nil || batchErrs != nil {
				select {
				case b, ok := <-batches:
					if !ok {
						batches = nil
						continue
					}
					select {
					case out <- b:
					case <-ctx.Done():
						return
					}
				case err, ok := <-batchErrs:
					if !ok {
						batchErrs = nil
						continue
					}
					errs <- err
				}
			}
		}(ad, requests)
	}

	go func() {
		wg.Wait()
		close(out)
		close(errs)
	}()

	return out, errs
}

func totalRequests(byAdapter map[string][]Request) int {
	n := 0
	for _, reqs := range byAdapter {
		n += len(reqs)
	}
	return n + len(byAdapter) // headroom for one adapter-not-found error each
}

func adapterNotFoundError(name string) error {
	return &adapterNotFound{name: name}
}

type adapterNotFound struct{ name string }

func (e *adapterNotFound) Error() string {
	return "backfill: no adapter registered under name " + e.name
}
