package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// Client communicates with the LLM advisor microservice that backs the
// stance evaluations. The service takes a stance-framed prompt and returns
// the model's raw completion; parsing happens client-side.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new advisor service client.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("client", "advisor").Logger(),
	}
}

// evaluateRequest is the request payload for a stance evaluation.
type evaluateRequest struct {
	Stance string `json:"stance"`
	Symbol string `json:"symbol"`
	Prompt string `json:"prompt"`
}

// evaluateResponse is the advisor service's reply.
type evaluateResponse struct {
	Content string  `json:"content"`
	Elapsed float64 `json:"elapsed_seconds"`
}

// Evaluate requests one stance's argument for a position. Timeouts and
// malformed responses surface as ErrEvaluationFailed so the synthesizer
// can degrade instead of blocking the cycle.
func (c *Client) Evaluate(ctx context.Context, stance domain.Stance, assessment domain.PositionAssessment, market domain.MarketContext) (domain.DebateArgument, error) {
	req := evaluateRequest{
		Stance: string(stance),
		Symbol: assessment.Symbol,
		Prompt: BuildPrompt(stance, assessment, market),
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return domain.DebateArgument{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/evaluate", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return domain.DebateArgument{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.DebateArgument{}, fmt.Errorf("%w: %v", domain.ErrEvaluationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.DebateArgument{}, fmt.Errorf("%w: advisor returned status %d: %s",
			domain.ErrEvaluationFailed, resp.StatusCode, string(body))
	}

	var response evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return domain.DebateArgument{}, fmt.Errorf("%w: failed to decode response: %v", domain.ErrEvaluationFailed, err)
	}

	arg, err := ParseArgument(response.Content, stance)
	if err != nil {
		return domain.DebateArgument{}, err
	}

	c.log.Debug().
		Str("stance", string(stance)).
		Str("symbol", assessment.Symbol).
		Str("action", string(arg.Action)).
		Float64("elapsed_seconds", time.Since(startTime).Seconds()).
		Msg("Stance evaluation complete")

	return arg, nil
}

// HealthCheck checks if the advisor service is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
