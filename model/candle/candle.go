// Package candle holds the wire- and storage-level representation of OHLCV
// data shared by the backfill engine, the exchange adapters, and the
// columnar store.
package candle

import "fmt"

// Candle is one OHLCV bar at a given granularity.
//
// Invariants: Low <= Open, Close <= High; Volume >= 0; Time is aligned to
// the batch's granularity.
type Candle struct {
	Time   int64 // epoch seconds, UTC
	Low    float64
	High   float64
	Open   float64
	Close  float64
	Volume float64
}

// Valid reports whether c satisfies the price and volume invariants
// documented above. Time alignment to a granularity is not checked.
func (c Candle) Valid() bool {
	if c.Volume < 0 {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close || c.Low > c.High {
		return false
	}
	if c.High < c.Open || c.High < c.Close {
		return false
	}
	return true
}

// Batch is a non-empty, strictly-increasing-by-time run of Candles for a
// single product, as emitted by one REST response in the Backfill Engine.
type Batch struct {
	Product string
	Data    []Candle
}

// Validate checks the invariants a Batch must hold before it may be emitted:
// non-empty, strictly increasing timestamps, and every candle individually
// valid per Candle.Valid.
func (b Batch) Validate() error {
	if len(b.Data) == 0 {
		return fmt.Errorf("candle: empty batch for %s", b.Product)
	}
	for i, c := range b.Data {
		if !c.Valid() {
			return fmt.Errorf("candle: batch for %s has invalid candle at index %d (t=%d low=%v high=%v open=%v close=%v volume=%v)",
				b.Product, i, c.Time, c.Low, c.High, c.Open, c.Close, c.Volume)
		}
		if i > 0 && b.Data[i].Time <= b.Data[i-1].Time {
			return fmt.Errorf("candle: batch for %s not strictly increasing at index %d (%d <= %d)",
				b.Product, i, b.Data[i].Time, b.Data[i-1].Time)
		}
	}
	return nil
}

// MaxTime returns the latest timestamp in the batch. Callers must only call
// this on a non-empty batch (Validate first).
func (b Batch) MaxTime() int64 {
	max := b.Data[0].Time
	for _, c := range b.Data[1:] {
		if c.Time > max {
			max = c.Time
		}
	}
	return max
}

// SortAscending sorts Data by Time ascending in place. Exchanges such as
// Coinbase return candles newest-first; callers must sort before Validate.
func SortAscending(data []Candle) {
	// insertion sort: batches are bounded by MAX_CANDLES (a few hundred rows)
	// so this is simpler than pulling in sort.Slice for a closure per call site.
	for i := 1; i < len(data); i++ {
		j := i
		for j > 0 && data[j-1].Time > data[j].Time {
			data[j-1], data[j] = data[j], data[j-1]
			j--
		}
	}
}
