// Package orderbook implements the live order-book maintainer: it consumes
// a live level-2 feed from an exchange adapter, applies updates to an
// in-memory book.Book per product, and emits point-in-time snapshots on a
// timer.
//
// State is a mutex-guarded per-product map; snapshots are copied out before
// the lock is released so downstream delivery never blocks the writer.
package orderbook

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yitech/candlestore/adapter"
	"github.com/yitech/candlestore/model/book"
)

// Maintainer tracks live order books for a set of products, fed by a single
// adapter.StreamAdapter subscription.
type Maintainer struct {
	logger zerolog.Logger

	mu    sync.Mutex
	books map[string]*book.Book
}

// New returns an empty Maintainer.
func New(logger zerolog.Logger) *Maintainer {
	return &Maintainer{
		logger: logger,
		books:  make(map[string]*book.Book),
	}
}

// Handle is the scoped-acquisition lifecycle object returned by Start.
// Close unsubscribes from the exchange feed and stops the snapshot timer;
// it is safe to call more than once.
type Handle struct {
	sub       adapter.Subscription
	snapshots chan book.Snapshot
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Snapshots returns the channel of periodic book.Snapshot values. It is
// closed when the Handle is closed or the context passed to Start is
// cancelled.
func (h *Handle) Snapshots() <-chan book.Snapshot { return h.snapshots }

// Close tears down the underlying subscription and stops emitting
// snapshots.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.cancel()
		err = h.sub.Close()
	})
	return err
}

// Start subscribes to products on stream, maintains a book per product, and
// emits a book.Snapshot across every tracked product every frequency. depth
// bounds how many price levels are retained per side.
//
// There is no separate "until" deadline parameter: snapshot emission runs
// for as long as ctx is alive, so a caller wanting snapshots until some
// wall-clock instant should pass a ctx built with context.WithDeadline —
// the Handle's snapshot channel closes once that deadline fires, same as on
// an explicit Close.
func (m *Maintainer) Start(ctx context.Context, stream adapter.StreamAdapter, products []string, depth int, frequency time.Duration) (*Handle, error) {
	m.mu.Lock()
	for _, p := range products {
		if _, ok := m.books[p]; !ok {
			m.books[p] = book.New(p, depth)
		}
	}
	m.mu.Unlock()

	sub, err := stream.SubscribeLevel2(ctx, products)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		sub:       sub,
		snapshots: make(chan book.Snapshot),
		cancel:    cancel,
	}

	go m.consume(ctx, sub, products)
	go m.emitSnapshots(ctx, products, frequency, h.snapshots)

	return h, nil
}

// consume applies every inbound Level2Message to the corresponding book
// until ctx is cancelled or the subscription's channel closes.
func (m *Maintainer) consume(ctx context.Context, sub adapter.Subscription, products []string) {
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			m.apply(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Maintainer) apply(msg adapter.Level2Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[msg.Product]
	if !ok {
		m.logger.Warn().Str("product", msg.Product).Msg("level2 update for untracked product")
		return
	}
	for _, u := range msg.Updates {
		b.Apply(u.Side, u.Price, u.NewQuantity)
	}
}

// emitSnapshots runs the snapshot timer loop, producing a value-copied
// Snapshot across every tracked product every frequency until ctx is
// cancelled.
func (m *Maintainer) emitSnapshots(ctx context.Context, products []string, frequency time.Duration, out chan<- book.Snapshot) {
	defer close(out)

	ticker := time.NewTicker(frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := m.snapshot(products)
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// snapshot copies the current state of every tracked product under lock,
// then releases it before returning — never holding the lock while a
// downstream consumer processes the result.
func (m *Maintainer) snapshot(products []string) book.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := book.Snapshot{
		Timestamp: time.Now().UTC(),
		Products:  make(map[string]book.ProductSnapshot, len(products)),
	}
	for _, p := range products {
		if b, ok := m.books[p]; ok {
			snap.Products[p] = b.Snapshot()
		}
	}
	return snap
}
