package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// Client fetches quotes and daily closes from Yahoo Finance. It serves as
// the monitor's price oracle; all requests carry the caller's context so a
// cycle timeout cancels in-flight fetches.
type Client struct {
	client      *http.Client
	maxQuoteAge time.Duration
	log         zerolog.Logger
}

// NewClient creates a new Yahoo Finance client. Quotes older than
// maxQuoteAge are still returned but flagged stale.
func NewClient(timeout, maxQuoteAge time.Duration, log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		maxQuoteAge: maxQuoteAge,
		log:         log.With().Str("client", "yahoo").Logger(),
	}
}

// quoteResponse is the shape of the v7 quote endpoint.
type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			RegularMarketTime  int64   `json:"regularMarketTime"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// GetPrices fetches current prices for a batch of symbols in one request.
// The result map contains an entry for every symbol Yahoo answered for;
// callers must treat missing symbols as unavailable. A fully failed fetch
// returns ErrDataUnavailable.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	params := url.Values{}
	params.Add("symbols", strings.Join(symbols, ","))
	params.Add("fields", "symbol,regularMarketPrice,regularMarketTime")

	reqURL := "https://query1.finance.yahoo.com/v7/finance/quote?" + params.Encode()

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}

	var result quoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse quote response: %v", domain.ErrDataUnavailable, err)
	}
	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("%w: quote API error: %v", domain.ErrDataUnavailable, result.QuoteResponse.Error)
	}

	quotes := make(map[string]domain.Quote, len(result.QuoteResponse.Result))
	for _, r := range result.QuoteResponse.Result {
		if r.RegularMarketPrice <= 0 {
			continue
		}
		ts := time.Unix(r.RegularMarketTime, 0)
		if r.RegularMarketTime == 0 {
			ts = time.Now()
		}
		quotes[r.Symbol] = domain.Quote{
			Symbol:    r.Symbol,
			Price:     r.RegularMarketPrice,
			Timestamp: ts,
		}
	}

	c.log.Debug().
		Int("requested", len(symbols)).
		Int("returned", len(quotes)).
		Msg("Fetched quote batch")

	return quotes, nil
}

// IsStale reports whether a quote is older than the configured maximum age.
func (c *Client) IsStale(q domain.Quote) bool {
	return time.Since(q.Timestamp) > c.maxQuoteAge
}

// GetDailyCloses fetches up to `days` daily closing prices for a symbol,
// oldest first. Used to build the market context for debates.
func (c *Client) GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	rangeParam := "3mo"
	switch {
	case days > 250:
		rangeParam = "2y"
	case days > 120:
		rangeParam = "1y"
	case days > 60:
		rangeParam = "6mo"
	}

	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", rangeParam)

	reqURL := "https://query1.finance.yahoo.com/v8/finance/chart/" + url.QueryEscape(symbol) + "?" + params.Encode()

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}

	var result struct {
		Chart struct {
			Result []struct {
				Indicators struct {
					Quote []struct {
						Close []float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error interface{} `json:"error"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse chart response: %v", domain.ErrDataUnavailable, err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("%w: chart API error: %v", domain.ErrDataUnavailable, result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: no chart data for %s", domain.ErrDataUnavailable, symbol)
	}

	raw := result.Chart.Result[0].Indicators.Quote[0].Close
	closes := make([]float64, 0, len(raw))
	for _, v := range raw {
		// Yahoo returns nulls as zeros for market holidays.
		if v > 0 {
			closes = append(closes, v)
		}
	}

	if len(closes) > days {
		closes = closes[len(closes)-days:]
	}

	return closes, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Yahoo rejects requests without a browser user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
