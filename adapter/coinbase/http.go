package coinbase

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

// FetchCandles requests one window of candles from Coinbase's product
// candles endpoint and classifies the HTTP outcome into the response
// taxonomy. Coinbase returns newest-first rows of
// [time, low, high, open, close, volume].
func (a *Adapter) FetchCandles(ctx context.Context, product string, start, end time.Time, granularity time.Duration) (adapter.FetchResult, error) {
	if start.After(end) {
		return adapter.FetchResult{}, fmt.Errorf("coinbase: start %s is after end %s", start, end)
	}

	u, uerr := url.Parse(fmt.Sprintf(candlesURL, product))
	if uerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("coinbase: parse url: %w", uerr)
	}
	q := u.Query()
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	q.Set("granularity", strconv.Itoa(int(granularity.Seconds())))
	u.RawQuery = q.Encode()

	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if rerr != nil {
		return adapter.FetchResult{}, fmt.Errorf("coinbase: build request: %w", rerr)
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Contact-Email", a.cfg.Email)
	req.Header.Set("X-App-Version", a.cfg.Version)
	req.Header.Set("X-Repo-Link", a.cfg.RepoLink)

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

	var rows [][]float64
	if derr := json.NewDecoder(resp.Body).Decode(&rows); derr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}

	if len(rows) == 0 {
		return adapter.FetchResult{Tag: adapter.NoData}, nil
	}

	data, perr := parseCandles(rows)
	if perr != nil {
		return adapter.FetchResult{Tag: adapter.APIFailure}, nil
	}

	return adapter.FetchResult{
		Tag:   adapter.OK,
		Batch: candle.Batch{Product: product, Data: data},
	}, nil
}

// parseCandles converts Coinbase's [time, low, high, open, close, volume]
// rows into candle.Candle values.
func parseCandles(rows [][]float64) ([]candle.Candle, error) {
	out := make([]candle.Candle, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("coinbase: row[%d] has %d fields, want >= 6", i, len(r))
		}
		out = append(out, candle.Candle{
			Time:   int64(r[0]),
			Low:    r[1],
			High:   r[2],
			Open:   r[3],
			Close:  r[4],
			Volume: r[5],
		})
	}
	return out, nil
}
