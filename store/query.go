package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yitech/candlestore/model/candle"
)

// dateLayouts are the ISO-8601-ish layouts accepted for t_from/t_to besides
// epoch numbers and time.Time.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NormalizeTime converts one of the accepted query-time representations —
// int64/int epoch seconds, float64 epoch seconds, an ISO-8601-ish string,
// or a time.Time — into epoch seconds for range comparison.
func NormalizeTime(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case time.Time:
		return t.Unix(), nil
	case string:
		return parseTimeString(t)
	default:
		return 0, fmt.Errorf("store: unsupported time value of type %T", v)
	}
}

func parseTimeString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), nil
	}
	return 0, fmt.Errorf("store: cannot parse time string %q", s)
}

// Query returns the rows for product with timestamp in [tFrom, tTo],
// sorted ascending, reading only the merged tier. tFrom and tTo accept any
// of the formats NormalizeTime understands.
func (s *Store) Query(product string, tFrom, tTo interface{}) ([]candle.Candle, error) {
	from, err := NormalizeTime(tFrom)
	if err != nil {
		return nil, fmt.Errorf("store: t_from: %w", err)
	}
	to, err := NormalizeTime(tTo)
	if err != nil {
		return nil, fmt.Errorf("store: t_to: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readMerged(mergedPath(s.root, product))
	if err != nil {
		return nil, fmt.Errorf("store: read merged for query: %w", err)
	}

	out := make([]candle.Candle, 0, len(rows))
	for _, c := range rows {
		if c.Time >= from && c.Time <= to {
			out = append(out, c)
		}
	}
	return out, nil
}
