package okx

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
	baseURL   = "https://www.okx.com"
	klinePath = "/api/v5/market/history-candles"
)

// FetchCandles requests one window of OKX candles and classifies the
// outcome into the response taxonomy. OKX serves pages via a
// cursor (`after`) rather than a [start, end] pair; this fetches the single
// page anchored at end and reports whatever falls inside [start, end],
// matching the windowed-cursor contract the Backfill Engine drives it with.
func (a *Adapter) FetchCandles(ctx context.Context, product string, start, end time.Time, granularity time.Duration) (adapter.FetchResult, error) {
	if start.After(end) {
		return adapter.FetchResult{}, fmt.Errorf("okx: start %s is after end %s", start, end)
	}

	bar, err := barString(granularity)
	if err != nil {
		return adapter.FetchResult{}, err
	}

	after := strconv.FormatInt(end.UnixMilli()+1, 10)

	u, uerr := url.Parse(baseURL + klinePath)
	if uerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("okx: parse url: %w", uerr)
	}
	q := u.Query()
	q.Set("instId", product)
	q.Set("bar", bar)
	q.Set("after", after)
	q.Set("limit", strconv.Itoa(a.MaxCandles()))
	u.RawQuery = q.Encode()

	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if rerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("okx: build request: %w", rerr)
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

	var envelope struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if derr := json.NewDecoder(resp.Body).Decode(&envelope); derr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}
	if envelope.Code != "0" {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}
	if len(envelope.Data) == 0 {
		return adapter.FetchResult{Tag: adapter.NoData}, nil
	}

	data, perr := parseKlines(envelope.Data, start.UnixMilli(), end.UnixMilli())
	if perr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}
	if len(data) == 0 {
		return adapter.FetchResult{Tag: adapter.NoData}, nil
	}

	return adapter.FetchResult{
		Tag:   adapter.OK,
		Batch: candle.Batch{Product: product, Data: data},
	}, nil
}

func barString(granularity time.Duration) (string, error) {
	switch granularity {
	case time.Minute:
		return "1m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case time.Hour:
		return "1H", nil
	case 6 * time.Hour:
		return "6H", nil
	case 24 * time.Hour:
		return "1D", nil
	default:
		return "", fmt.Errorf("okx: unsupported granularity %s", granularity)
	}
}

// parseKlines converts the OKX wire format into chronologically-sorted
// candle.Candle values, keeping only rows within [startMs, endMs].
//
// OKX kline array layout:
//
//	[0] ts     (open time, ms)
//	[1] o      (open)
//	[2] h      (high)
//	[3] l      (low)
//	[4] c      (close)
//	[5] vol    (base currency volume)
//	[6+]       quote volume / confirm flag — unused
func parseKlines(rows [][]string, startMs, endMs int64) ([]candle.Candle, error) {
	out := make([]candle.Candle, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("okx: kline[%d] has %d fields, want >= 6", i, len(r))
		}

		openTimeMs, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("okx: kline[%d] open_time: %w", i, err)
		}
		if openTimeMs < startMs || openTimeMs > endMs {
			continue
		}

		open, err := strconv.ParseFloat(r[1], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: kline[%d] open: %w", i, err)
		}
		high, err := strconv.ParseFloat(r[2], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: kline[%d] high: %w", i, err)
		}
		low, err := strconv.ParseFloat(r[3], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: kline[%d] low: %w", i, err)
		}
		closePrice, err := strconv.ParseFloat(r[4], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: kline[%d] close: %w", i, err)
		}
		volume, err := strconv.ParseFloat(r[5], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: kline[%d] volume: %w", i, err)
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

	candle.SortAscending(out)
	return out, nil
}
