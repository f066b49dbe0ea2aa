package store

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlestore/model/candle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, 0, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func batchOf(product string, times ...int64) candle.Batch {
	data := make([]candle.Candle, 0, len(times))
	for _, ts := range times {
		data = append(data, candle.Candle{Time: ts, Low: 1, High: 2, Open: 1, Close: 2, Volume: 1})
	}
	return candle.Batch{Product: product, Data: data}
}

func TestStore_WriteAndQuery_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	b := batchOf("BTC-USD", 100, 200, 300)

	require.NoError(t, s.Write(b))
	require.NoError(t, s.Compact("BTC-USD"))

	rows, err := s.Query("BTC-USD", int64(100), int64(300))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{rows[0].Time, rows[1].Time, rows[2].Time})
}

func TestStore_Query_NoDataForUnknownProduct(t *testing.T) {
	s := newTestStore(t)
	rows, err := s.Query("ZZZ-NEVER", int64(0), int64(1<<40))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_Query_ScratchInvisibleUntilCompacted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write(batchOf("BTC-USD", 100)))

	rows, err := s.Query("BTC-USD", int64(0), int64(1000))
	require.NoError(t, err)
	assert.Empty(t, rows, "uncompacted scratch rows must not be visible to Query")

	require.NoError(t, s.Compact("BTC-USD"))
	rows, err = s.Query("BTC-USD", int64(0), int64(1000))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_Compact_IdempotentOnEmptyScratch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Compact("BTC-USD"))

	_, err := os.Stat(mergedPath(s.root, "BTC-USD"))
	assert.True(t, os.IsNotExist(err), "compacting an empty scratch must not create a merged partition")
}

func TestStore_Compact_DedupesByTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write(batchOf("BTC-USD", 100, 200)))
	require.NoError(t, s.Compact("BTC-USD"))

	require.NoError(t, s.Write(batchOf("BTC-USD", 200, 300)))
	require.NoError(t, s.Compact("BTC-USD"))

	rows, err := s.Query("BTC-USD", int64(0), int64(1000))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{rows[0].Time, rows[1].Time, rows[2].Time})
}

func TestStore_Write_ForcesCompactionOnProductSwitch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write(batchOf("BTC-USD", 100)))
	require.NoError(t, s.Write(batchOf("ETH-USD", 200)))

	size, err := scratchSize(s.root, "BTC-USD")
	require.NoError(t, err)
	assert.Zero(t, size, "switching products must flush the prior product's scratch")

	rows, err := s.Query("BTC-USD", int64(0), int64(1000))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_Write_ForcesCompactionAtThreshold(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 1, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Write(batchOf("BTC-USD", 100)))

	size, err := scratchSize(s.root, "BTC-USD")
	require.NoError(t, err)
	assert.Zero(t, size, "threshold crossing must trigger compaction")

	rows, err := s.Query("BTC-USD", int64(0), int64(1000))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_Write_RejectsInvalidBatch(t *testing.T) {
	s := newTestStore(t)
	err := s.Write(candle.Batch{Product: "BTC-USD"})
	assert.Error(t, err)
}

func TestStore_Query_RangeIsInclusive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write(batchOf("BTC-USD", 100, 200, 300, 400)))
	require.NoError(t, s.Compact("BTC-USD"))

	rows, err := s.Query("BTC-USD", int64(200), int64(300))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(200), rows[0].Time)
	assert.Equal(t, int64(300), rows[1].Time)
}

func TestNormalizeTime_Formats(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
	}{
		{"int64", int64(1707566400), 1707566400},
		{"int", int(1707566400), 1707566400},
		{"float64", float64(1707566400), 1707566400},
		{"iso_date", "2024-02-10", 1707523200},
		{"iso_datetime_space", "2024-02-10 12:00:00", 1707566400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTime_Unsupported(t *testing.T) {
	_, err := NormalizeTime(struct{}{})
	assert.Error(t, err)
}
