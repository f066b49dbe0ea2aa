package orderbook

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlestore/adapter"
	"github.com/yitech/candlestore/model/book"
)

// fakeSubscription is an in-memory adapter.Subscription a test can push
// messages through directly.
type fakeSubscription struct {
	out    chan adapter.Level2Message
	closed chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{out: make(chan adapter.Level2Message, 16), closed: make(chan struct{})}
}

func (s *fakeSubscription) Messages() <-chan adapter.Level2Message { return s.out }

func (s *fakeSubscription) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

type fakeStream struct {
	sub *fakeSubscription
}

func (f *fakeStream) SubscribeLevel2(ctx context.Context, products []string) (adapter.Subscription, error) {
	return f.sub, nil
}

func TestMaintainer_AppliesUpdates_DeleteThenReinsert(t *testing.T) {
	sub := newFakeSubscription()
	stream := &fakeStream{sub: sub}
	m := New(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := m.Start(ctx, stream, []string{"BTC-USD"}, 50, time.Hour)
	require.NoError(t, err)
	defer handle.Close()

	send := func(price, qty float64) {
		sub.out <- adapter.Level2Message{
			Product: "BTC-USD",
			Updates: []adapter.LevelUpdate{{Side: book.Bid, Price: price, NewQuantity: qty}},
		}
	}

	send(100.0, 5)
	waitForBidCount(t, m, "BTC-USD", 1)
	assertBidQuantity(t, m, "BTC-USD", 100.0, 5)

	send(100.0, 0)
	waitForBidCount(t, m, "BTC-USD", 0)

	send(100.0, 3)
	waitForBidCount(t, m, "BTC-USD", 1)
	assertBidQuantity(t, m, "BTC-USD", 100.0, 3)
}

func TestMaintainer_IgnoresUnknownProduct(t *testing.T) {
	sub := newFakeSubscription()
	stream := &fakeStream{sub: sub}
	m := New(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := m.Start(ctx, stream, []string{"BTC-USD"}, 50, time.Hour)
	require.NoError(t, err)
	defer handle.Close()

	sub.out <- adapter.Level2Message{
		Product: "ETH-USD",
		Updates: []adapter.LevelUpdate{{Side: book.Bid, Price: 10, NewQuantity: 1}},
	}

	waitForBidCount(t, m, "BTC-USD", 0)
}

func TestMaintainer_Snapshot_IsSortedAndDepthBounded(t *testing.T) {
	sub := newFakeSubscription()
	stream := &fakeStream{sub: sub}
	m := New(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := m.Start(ctx, stream, []string{"BTC-USD"}, 2, 20*time.Millisecond)
	require.NoError(t, err)
	defer handle.Close()

	for _, p := range []float64{100, 105, 102} {
		sub.out <- adapter.Level2Message{
			Product: "BTC-USD",
			Updates: []adapter.LevelUpdate{{Side: book.Bid, Price: p, NewQuantity: 1}},
		}
	}
	for _, p := range []float64{200, 198, 199} {
		sub.out <- adapter.Level2Message{
			Product: "BTC-USD",
			Updates: []adapter.LevelUpdate{{Side: book.Ask, Price: p, NewQuantity: 1}},
		}
	}

	var snap book.Snapshot
	select {
	case snap = <-handle.Snapshots():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}

	ps, ok := snap.Products["BTC-USD"]
	require.True(t, ok)
	require.Len(t, ps.Bids, 2)
	require.Len(t, ps.Asks, 2)
	assert.Equal(t, []float64{105, 102}, []float64{ps.Bids[0].Price, ps.Bids[1].Price})
	assert.Equal(t, []float64{198, 199}, []float64{ps.Asks[0].Price, ps.Asks[1].Price})
}

func TestMaintainer_Close_StopsSnapshots(t *testing.T) {
	sub := newFakeSubscription()
	stream := &fakeStream{sub: sub}
	m := New(zerolog.Nop())

	handle, err := m.Start(context.Background(), stream, []string{"BTC-USD"}, 10, 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, handle.Close())

	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatal("Close must close the underlying subscription")
	}

	_, ok := <-handle.Snapshots()
	assert.False(t, ok, "snapshot channel must be closed after Close")
}

// waitForBidCount polls the maintainer's book state for up to a second,
// since message application happens on a background goroutine.
func waitForBidCount(t *testing.T, m *Maintainer, product string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		b, ok := m.books[product]
		var got int
		if ok {
			got = len(b.Bids)
		}
		m.mu.Unlock()
		if ok && got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s bid count == %d", product, want)
}

func assertBidQuantity(t *testing.T, m *Maintainer, product string, price, qty float64) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[product]
	require.True(t, ok)
	for _, l := range b.Bids {
		if l.Price == price {
			assert.Equal(t, qty, l.Quantity)
			return
		}
	}
	t.Fatalf("no bid level at price %v", price)
}
