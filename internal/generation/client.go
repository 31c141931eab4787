package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/metrics"
)

const (
	defaultMaxAttempts      = 3
	defaultRequestTimeout   = 120 * time.Second
	defaultTransportBackoff = 2 * time.Second
	defaultRateLimitBackoff = 5 * time.Second
)

var errNoImageInResponse = errors.New("no image payload in response")

// Client calls a generative image API. It knows nothing about jobs,
// credits or caching: one prompt plus images in, one normalized result
// out, with retries and backoff handled per attempt.
type Client struct {
	endpoint         string
	apiKey           string
	model            string
	httpClient       *http.Client
	limiter          *rate.Limiter
	maxAttempts      int
	transportBackoff time.Duration
	rateLimitBackoff time.Duration
}

type ClientOption func(c *Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithMaxAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.maxAttempts = attempts
	}
}

func WithBackoff(transport, rateLimit time.Duration) ClientOption {
	return func(c *Client) {
		c.transportBackoff = transport
		c.rateLimitBackoff = rateLimit
	}
}

func WithRateLimiter(limiter *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func NewClient(endpoint, apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:         endpoint,
		apiKey:           apiKey,
		model:            model,
		httpClient:       &http.Client{Timeout: defaultRequestTimeout},
		limiter:          rate.NewLimiter(rate.Inf, 1),
		maxAttempts:      defaultMaxAttempts,
		transportBackoff: defaultTransportBackoff,
		rateLimitBackoff: defaultRateLimitBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate sends the prompt followed by the images, in order, and returns
// the generated image. Attempts are retried with a per-class backoff; on
// exhaustion the last observed error is returned, prefixed with the
// attempt count.
func (c *Client) Generate(ctx context.Context, images []ImagePayload, prompt string) (*Result, error) {
	body, err := c.buildRequestBody(images, prompt)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		result, attemptErr := c.doAttempt(ctx, body)
		metrics.ObserveGenerationRequestDuration(time.Since(start))

		if attemptErr == nil {
			metrics.IncreaseGenerationRequestsTotalMetric("success")
			return result, nil
		}
		metrics.IncreaseGenerationRequestsTotalMetric("error")
		lastErr = attemptErr

		zap.S().Named("generation").Warnw("generation attempt failed",
			"attempt", attempt, "max_attempts", c.maxAttempts, "error", attemptErr)

		if attempt == c.maxAttempts {
			break
		}
		if err := c.wait(ctx, c.backoffFor(attemptErr, attempt)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.maxAttempts, lastErr)
}

type rateLimitedError struct {
	message string
}

func (e *rateLimitedError) Error() string {
	return e.message
}

func (c *Client) buildRequestBody(images []ImagePayload, prompt string) ([]byte, error) {
	parts := make([]requestPart, 0, len(images)+1)
	parts = append(parts, requestPart{Text: prompt})
	for _, img := range images {
		parts = append(parts, requestPart{
			InlineData: &inlineData{
				MimeType: img.MimeType,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}

	body, err := json.Marshal(generateRequest{Contents: []requestContent{{Parts: parts}}})
	if err != nil {
		return nil, fmt.Errorf("marshaling generation request: %w", err)
	}
	return body, nil
}

func (c *Client) doAttempt(ctx context.Context, body []byte) (*Result, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &rateLimitedError{message: fmt.Sprintf("rate limited: %s", serverMessage(respBody, resp.StatusCode))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(serverMessage(respBody, resp.StatusCode))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return extractResult(&parsed)
}

// extractResult normalizes the two supported response shapes into one
// result. A parseable 2xx body without a recognizable image is an error
// and consumes a retry, same as a transport failure.
func extractResult(resp *generateResponse) (*Result, error) {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			inline := part.InlineData
			if inline == nil {
				inline = part.InlineDataSnake
			}
			if inline == nil || inline.Data == "" {
				continue
			}

			data, err := base64.StdEncoding.DecodeString(inline.Data)
			if err != nil {
				return nil, fmt.Errorf("decoding image payload: %w", err)
			}
			mimeType := inline.mimeType()
			if mimeType == "" {
				mimeType = "image/png"
			}
			return &Result{MimeType: mimeType, Data: data}, nil
		}
	}
	return nil, errNoImageInResponse
}

func serverMessage(body []byte, statusCode int) string {
	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", statusCode, parsed.Error.Message)
	}
	return fmt.Sprintf("status %d", statusCode)
}

func (c *Client) backoffFor(err error, attempt int) time.Duration {
	var rateLimited *rateLimitedError
	if errors.As(err, &rateLimited) {
		return c.rateLimitBackoff * time.Duration(attempt)
	}
	return c.transportBackoff * time.Duration(attempt)
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
