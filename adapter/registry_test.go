package adapter

import (
	"context"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) FetchCandles(context.Context, string, time.Time, time.Time, time.Duration) (FetchResult, error) {
	return FetchResult{}, nil
}
func (s *stubAdapter) MaxCandles() int             { return 300 }
func (s *stubAdapter) DefaultRateLimitHz() float64 { return 8 }

func TestRegistry_RegisterAndNew(t *testing.T) {
	r := NewRegistry()
	r.Register("coinbase", func() CandleAdapter { return &stubAdapter{name: "coinbase"} })

	ad, err := r.New("coinbase")
	require.NoError(t, err)
	assert.Equal(t, "coinbase", ad.(*stubAdapter).name)
}

func TestRegistry_UnknownNameIsAbsentNotStub(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("robinhood")
	assert.Error(t, err, "an unregistered exchange must be absent rather than raising at call time on a stub")
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register("coinbase", func() CandleAdapter { return &stubAdapter{} })
	r.Register("binance", func() CandleAdapter { return &stubAdapter{} })

	names := r.Names()
	assert.ElementsMatch(t, []string{"coinbase", "binance"}, names)
}

func TestRegistry_New_EachCallFreshInstance(t *testing.T) {
	r := NewRegistry()
	count := 0
	r.Register("coinbase", func() CandleAdapter {
		count++
		return &stubAdapter{name: "coinbase"}
	})

	_, err := r.New("coinbase")
	require.NoError(t, err)
	_, err = r.New("coinbase")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
