package bybit

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
	baseURL   = "https://api.bybit.com"
	klinePath = "/v5/market/kline"
)

// FetchCandles requests one window of Bybit klines and classifies the
// outcome into the response taxonomy.
func (a *Adapter) FetchCandles(ctx context.Context, product string, start, end time.Time, granularity time.Duration) (adapter.FetchResult, error) {
	if start.After(end) {
		return adapter.FetchResult{}, fmt.Errorf("bybit: start %s is after end %s", start, end)
	}

	interval, err := intervalString(granularity)
	if err != nil {
		return adapter.FetchResult{}, err
	}

	u, uerr := url.Parse(baseURL + klinePath)
	if uerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("bybit: parse url: %w", uerr)
	}
	q := u.Query()
	q.Set("category", a.category)
	q.Set("symbol", product)
	q.Set("interval", interval)
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(a.MaxCandles()))
	u.RawQuery = q.Encode()

	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if rerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("bybit: build request: %w", rerr)
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
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if derr := json.NewDecoder(resp.Body).Decode(&envelope); derr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}
	if envelope.RetCode != 0 {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}
	if len(envelope.Result.List) == 0 {
		return adapter.FetchResult{Tag: adapter.NoData}, nil
	}

	data, perr := parseKlines(envelope.Result.List)
	if perr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}

	return adapter.FetchResult{
		Tag:   adapter.OK,
		Batch: candle.Batch{Product: product, Data: data},
	}, nil
}

func intervalString(granularity time.Duration) (string, error) {
	switch granularity {
	case time.Minute:
		return "1", nil
	case 5 * time.Minute:
		return "5", nil
	case 15 * time.Minute:
		return "15", nil
	case time.Hour:
		return "60", nil
	case 6 * time.Hour:
		return "360", nil
	case 24 * time.Hour:
		return "D", nil
	default:
		return "", fmt.Errorf("bybit: unsupported granularity %s", granularity)
	}
}

// parseKlines converts the Bybit wire format (newest-first) into
// chronologically-sorted candle.Candle values.
//
// Bybit kline array layout:
//
//	[0] startTime  (ms)
//	[1] openPrice
//	[2] highPrice
//	[3] lowPrice
//	[4] closePrice
//	[5] volume     (base coin)
//	[6] turnover   (quote coin) — unused
func parseKlines(rows [][]string) ([]candle.Candle, error) {
	out := make([]candle.Candle, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("bybit: kline[%d] has %d fields, want >= 6", i, len(r))
		}

		openTimeMs, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] open_time: %w", i, err)
		}
		open, err := strconv.ParseFloat(r[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] open: %w", i, err)
		}
		high, err := strconv.ParseFloat(r[2], 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] high: %w", i, err)
		}
		low, err := strconv.ParseFloat(r[3], 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] low: %w", i, err)
		}
		closePrice, err := strconv.ParseFloat(r[4], 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] close: %w", i, err)
		}
		volume, err := strconv.ParseFloat(r[5], 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] volume: %w", i, err)
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
