// Package linear talks to the Linear GraphQL API: a cheap pulse check for
// ready work, and downloads of issue attachments named in agent output.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	defaultEndpoint = "https://api.linear.app/graphql"
	defaultTimeout  = 30 * time.Second
)

// Client is a minimal Linear GraphQL client with bounded retries and a
// circuit breaker.
type Client struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string
	logger     *slog.Logger
	sleepFn    func(context.Context, time.Duration)

	breaker *gobreaker.CircuitBreaker[json.RawMessage]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithEndpoint overrides the GraphQL endpoint URL.
func WithEndpoint(url string) Option {
	return func(cl *Client) {
		cl.endpoint = url
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithSleepFunc overrides the retry sleep.
func WithSleepFunc(fn func(context.Context, time.Duration)) Option {
	return func(cl *Client) {
		cl.sleepFn = fn
	}
}

func defaultSleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// NewClient creates a Linear client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		logger:     slog.Default(),
		sleepFn:    defaultSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "linear",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Bad credentials and query errors are not outages.
			var ce *ClassifiedError
			if errors.As(err, &ce) {
				return ce.Type == ErrAuth || ce.Type == ErrGraphQL
			}
			return false
		},
	})
	return c
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Query runs a GraphQL query and decodes its data field into out.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, out any) error {
	data, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.queryWithRetry(ctx, request{Query: query, Variables: vars})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return &ClassifiedError{Type: ErrOverloaded, Message: "circuit breaker open"}
		}
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &ClassifiedError{Type: ErrOverloaded, Message: "circuit breaker half-open, too many probes"}
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ClassifiedError{Type: ErrMalformedResponse, StatusCode: http.StatusOK, Message: fmt.Sprintf("decode data: %v", err)}
	}
	return nil
}

func (c *Client) queryWithRetry(ctx context.Context, req request) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		data, err := c.doRequest(ctx, req)
		if err == nil {
			return data, nil
		}

		var classified *ClassifiedError
		if !errors.As(err, &classified) {
			return nil, err
		}
		if !classified.Retryable() || attempt >= classified.MaxRetries() {
			return nil, classified
		}

		delay := retryDelay(classified, attempt)
		c.logger.Warn("retrying Linear request",
			"error_type", classified.Type.String(),
			"attempt", attempt+1,
			"delay", delay,
		)

		c.sleepFn(ctx, delay)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (c *Client) doRequest(ctx context.Context, req request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Personal API keys go in the header as-is, without "Bearer".
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ClassifiedError{Type: ErrTimeout, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ClassifiedError{Type: ErrMalformedResponse, StatusCode: resp.StatusCode, Message: fmt.Sprintf("read response body: %v", err)}
	}

	var gr response
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &ClassifiedError{Type: ErrMalformedResponse, StatusCode: resp.StatusCode, Message: fmt.Sprintf("parse response JSON: %v", err)}
	}
	if len(gr.Errors) > 0 {
		return nil, classifyGraphQLErrors(gr.Errors)
	}
	return gr.Data, nil
}

// retryDelay is exponential backoff with jitter, honoring Retry-After.
func retryDelay(err *ClassifiedError, attempt int) time.Duration {
	if err.Type == ErrRateLimit && err.RetryAfter > 0 {
		return jitter(err.RetryAfter)
	}
	base := time.Second * time.Duration(1<<uint(attempt))
	if base > 8*time.Second {
		base = 8 * time.Second
	}
	return jitter(base)
}

func jitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(d) * factor)
}
