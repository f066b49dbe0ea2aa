package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yitech/candlestore/adapter"
	"github.com/yitech/candlestore/model/candle"
)

const (
	baseURL   = "https://api.binance.com"
	klinePath = "/api/v3/klines"
)

// FetchCandles requests one window of klines and classifies the HTTP
// outcome into the response taxonomy.
func (a *Adapter) FetchCandles(ctx context.Context, product string, start, end time.Time, granularity time.Duration) (adapter.FetchResult, error) {
	if start.After(end) {
		return adapter.FetchResult{}, fmt.Errorf("binance: start %s is after end %s", start, end)
	}

	interval, err := intervalString(granularity)
	if err != nil {
		return adapter.FetchResult{}, err
	}

	u, uerr := url.Parse(baseURL + klinePath)
	if uerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("binance: parse url: %w", uerr)
	}
	q := u.Query()
	q.Set("symbol", product)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(a.MaxCandles()))
	u.RawQuery = q.Encode()

	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if rerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("binance: build request: %w", rerr)
	}

	resp, derr := a.httpClient.Do(req)
	if derr != nil {
		if ctx.Err() != nil {
			return adapter.FetchResult{Tag: adapter.TimeoutError}, nil
		}
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return adapter.FetchResult{Tag: adapter.NotFound}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return adapter.FetchResult{Tag: adapter.RateLimited}, nil
	case resp.StatusCode >= 500:
		return adapter.FetchResult{Tag: adapter.ServerError}, nil
	case resp.StatusCode != http.StatusOK:
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}

	var raw [][]json.RawMessage
	if derr := json.NewDecoder(resp.Body).Decode(&raw); derr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}

	if len(raw) == 0 {
		return adapter.FetchResult{Tag: adapter.NoData}, nil
	}

	data, perr := parseKlines(raw)
	if perr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}

	return adapter.FetchResult{
		Tag:   adapter.OK,
		Batch: candle.Batch{Product: product, Data: data},
	}, nil
}

// intervalString maps a granularity to Binance's interval token. Binance's
// supported klines intervals are a superset of the six granularities the
// core uses.
func intervalString(granularity time.Duration) (string, error) {
	switch granularity {
	case time.Minute:
		return "1m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case time.Hour:
		return "1h", nil
	case 6 * time.Hour:
		return "6h", nil
	case 24 * time.Hour:
		return "1d", nil
	default:
		return "", fmt.Errorf("binance: unsupported granularity %s", granularity)
	}
}

// parseKlines converts the raw Binance wire format into candle.Candle
// values.
//
// Binance kline array layout:
//
//	[0]  Open time       (int64, Unix ms)
//	[1]  Open            (string)
//	[2]  High            (string)
//	[3]  Low             (string)
//	[4]  Close           (string)
//	[5]  Volume          (string, base asset)
//	[6]  Close time      (int64, Unix ms) — unused
//	[7+] quote volume / trade count / taker fields — unused
func parseKlines(raw [][]json.RawMessage) ([]candle.Candle, error) {
	out := make([]candle.Candle, 0, len(raw))
	for i, r := range raw {
		if len(r) < 6 {
			return nil, fmt.Errorf("binance: kline[%d] has %d fields, want >= 6", i, len(r))
		}

		openTimeMs, err := parseInt64(r[0])
		if err != nil {
			return nil, fmt.Errorf("binance: kline[%d] open_time: %w", i, err)
		}
		open, err := parseFloatString(r[1])
		if err != nil {
			return nil, fmt.Errorf("binance: kline[%d] open: %w", i, err)
		}
		high, err := parseFloatString(r[2])
		if err != nil {
			return nil, fmt.Errorf("binance: kline[%d] high: %w", i, err)
		}
		low, err := parseFloatString(r[3])
		if err != nil {
			return nil, fmt.Errorf("binance: kline[%d] low: %w", i, err)
		}
		closePrice, err := parseFloatString(r[4])
		if err != nil {
			return nil, fmt.Errorf("binance: kline[%d] close: %w", i, err)
		}
		volume, err := parseFloatString(r[5])
		if err != nil {
			return nil, fmt.Errorf("binance: kline[%d] volume: %w", i, err)
		}

		out = append(out, candle.Candle{
			Time:   openTimeMs / 1000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return out, nil
}

func parseInt64(raw json.RawMessage) (int64, error) {
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func parseFloatString(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
