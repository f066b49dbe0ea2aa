// Package store implements the columnar store and compactor: a two-tier
// write path that buffers incoming candle batches in append-only scratch
// CSV files and periodically merges them into per-product, compressed,
// timestamp-sorted, deduplicated partitions, with a range-query interface
// over the merged tier. The merged tier is gzip-compressed CSV rather than
// a binary columnar format.
package store

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yitech/candlestore/internal/atomicio"
	"github.com/yitech/candlestore/model/candle"
)

// DefaultCompactThresholdBytes is the default scratch-file size at which a
// write forces compaction.
const DefaultCompactThresholdBytes = 10 * 1024 * 1024

// Store owns the on-disk layout rooted at a single directory.
type Store struct {
	root      string
	threshold int64
	logger    zerolog.Logger

	mu          sync.Mutex
	lastProduct string
}

// New returns a Store rooted at root, creating the scratch directory if
// necessary. threshold <= 0 uses DefaultCompactThresholdBytes.
func New(root string, threshold int64, logger zerolog.Logger) (*Store, error) {
	if threshold <= 0 {
		threshold = DefaultCompactThresholdBytes
	}
	if err := os.MkdirAll(scratchDir(root), 0o755); err != nil {
		return nil, fmt.Errorf("store: create scratch dir: %w", err)
	}
	return &Store{root: root, threshold: threshold, logger: logger}, nil
}

func scratchDir(root string) string { return filepath.Join(root, "temp") }

func scratchPath(root, product string) string {
	return filepath.Join(scratchDir(root), product+".csv")
}

func mergedPath(root, product string) string {
	return filepath.Join(root, product+".parquet-equivalent")
}

// Write appends batch to its product's scratch file, forcing a compaction
// of the previously-written product first if batch switches products, and
// of batch's own product if the append crosses the size threshold. Write
// assumes a single writer per product.
func (s *Store) Write(batch candle.Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("store: refusing invalid batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastProduct != "" && s.lastProduct != batch.Product {
		if err := s.compactLocked(s.lastProduct); err != nil {
			return fmt.Errorf("store: forced compaction of %s before switching to %s: %w", s.lastProduct, batch.Product, err)
		}
	}

	if err := s.appendScratch(batch); err != nil {
		return err
	}
	s.lastProduct = batch.Product

	size, err := scratchSize(s.root, batch.Product)
	if err != nil {
		return fmt.Errorf("store: stat scratch: %w", err)
	}
	if size >= s.threshold {
		if err := s.compactLocked(batch.Product); err != nil {
			return fmt.Errorf("store: threshold compaction of %s: %w", batch.Product, err)
		}
	}
	return nil
}

func (s *Store) appendScratch(batch candle.Batch) error {
	path := scratchPath(s.root, batch.Product)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("store: open scratch for %s: %w", batch.Product, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, c := range batch.Data {
		if err := w.Write(candleRow(c)); err != nil {
			return fmt.Errorf("store: write scratch row for %s: %w", batch.Product, err)
		}
	}
	w.Flush()
	return w.Error()
}

func scratchSize(root, product string) (int64, error) {
	info, err := os.Stat(scratchPath(root, product))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func candleRow(c candle.Candle) []string {
	return []string{
		strconv.FormatInt(c.Time, 10),
		strconv.FormatFloat(c.Open, 'f', -1, 64),
		strconv.FormatFloat(c.High, 'f', -1, 64),
		strconv.FormatFloat(c.Low, 'f', -1, 64),
		strconv.FormatFloat(c.Close, 'f', -1, 64),
		strconv.FormatFloat(c.Volume, 'f', -1, 64),
	}
}

// Compact merges product's scratch rows into its merged partition,
// regardless of the size threshold — callers use this to force
// compaction on shutdown.
func (s *Store) Compact(product string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked(product)
}

// compactLocked implements the compaction procedure. Compacting an empty
// (or absent) scratch file is a documented no-op on the merged partition.
func (s *Store) compactLocked(product string) error {
	scratchRows, err := readScratch(scratchPath(s.root, product))
	if err != nil {
		return fmt.Errorf("store: read scratch: %w", err)
	}
	if len(scratchRows) == 0 {
		return nil
	}

	mergedRows, err := readMerged(mergedPath(s.root, product))
	if err != nil {
		return fmt.Errorf("store: read merged: %w", err)
	}

	all := append(mergedRows, scratchRows...)
	all = dedupeSortedByTime(all)

	if err := writeMerged(mergedPath(s.root, product), all); err != nil {
		return fmt.Errorf("store: write merged: %w", err)
	}
	if err := truncateScratch(scratchPath(s.root, product)); err != nil {
		return fmt.Errorf("store: truncate scratch: %w", err)
	}

	s.logger.Info().Str("product", product).Int("rows", len(all)).Msg("compacted merged partition")
	return nil
}

func truncateScratch(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Truncate(path, 0)
}

// dedupeSortedByTime sorts rows by Time ascending and drops duplicate
// timestamps, keeping the first occurrence in sorted order.
func dedupeSortedByTime(rows []candle.Candle) []candle.Candle {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })

	out := rows[:0:0]
	var lastTime int64
	haveLast := false
	for _, c := range rows {
		if haveLast && c.Time == lastTime {
			continue
		}
		out = append(out, c)
		lastTime = c.Time
		haveLast = true
	}
	return out
}

func readScratch(path string) ([]candle.Candle, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readCandleCSV(f)
}

func readMerged(path string) ([]candle.Candle, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	return readCandleCSV(gz)
}

func readCandleCSV(r io.Reader) ([]candle.Candle, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = 6

	var out []candle.Candle
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		c, err := parseCandleRow(record)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCandleRow(record []string) (candle.Candle, error) {
	t, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse timestamp: %w", err)
	}
	open, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(record[5], 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse volume: %w", err)
	}
	return candle.Candle{Time: t, Open: open, High: high, Low: low, Close: closePrice, Volume: volume}, nil
}

// writeMerged gzip-compresses rows as CSV and atomically replaces path.
func writeMerged(path string, rows []candle.Candle) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	w := csv.NewWriter(gz)
	for _, c := range rows {
		if err := w.Write(candleRow(c)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return atomicio.WriteFile(path, buf.Bytes(), 0o644)
}
