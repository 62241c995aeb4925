// Package polygon talks to the upstream aggregates vendor: a REST client for
// historical minute bars and a websocket feed for live ones.
package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/model"
	"emax/internal/domain/session"
)

// Client fetches historical minute aggregates over REST. One request covers
// the whole date range; there is no pagination follow-up, so a truncated
// response is logged via its next_url marker rather than silently assumed
// complete.
type Client struct {
	baseURL      string
	apiKey       string
	requestLimit int
	httpClient   *http.Client
}

func NewClient(baseURL, apiKey string, requestLimit, timeoutSecs int) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		requestLimit: requestLimit,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSecs) * time.Second,
		},
	}
}

// FetchBars implements port.BarProvider. Rows with missing or non-numeric
// fields are dropped individually; bars outside the regular session are
// filtered. An empty slice with nil error means the vendor has no data.
func (c *Client) FetchBars(ctx context.Context, symbol, timespan string, from, to time.Time) ([]model.Bar, error) {
	reqURL, err := c.buildAggregatesURL(symbol, timespan, from, to)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", port.ErrUpstreamTimeout, symbol)
		}
		return nil, fmt.Errorf("%w: %v", port.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: http %d: %s", port.ErrUpstream, resp.StatusCode, string(body))
	}

	var result aggregatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", port.ErrUpstream, err)
	}

	if result.NextURL != "" {
		log.Warn().
			Str("symbol", symbol).
			Int("results", result.ResultsCount).
			Int("query", result.QueryCount).
			Msg("upstream response truncated by row limit")
	}

	return c.normalize(symbol, result.Results), nil
}

func (c *Client) normalize(symbol string, rows []barRaw) []model.Bar {
	bars := make([]model.Bar, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		if !row.valid() {
			dropped++
			continue
		}
		bar := row.toBar(symbol)
		if !session.InRegularSession(bar.Timestamp) {
			continue
		}
		bars = append(bars, bar)
	}
	if dropped > 0 {
		log.Warn().Str("symbol", symbol).Int("dropped", dropped).Msg("malformed upstream rows dropped")
	}
	return bars
}

func (c *Client) buildAggregatesURL(symbol, timespan string, from, to time.Time) (string, error) {
	raw := fmt.Sprintf("%s/aggs/ticker/%s/range/%s/minute/%s/%s",
		c.baseURL, symbol, timespan, from.Format("2006-01-02"), to.Format("2006-01-02"))
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(c.requestLimit))
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ port.BarProvider = (*Client)(nil)
