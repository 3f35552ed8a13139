package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/usageland/internal/domain"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.product.com"

var ErrInvalidPayload = errors.New("usage api returned invalid json")

// StatusError reports a non-200 response for a single day.
type StatusError struct {
	Date       domain.Date
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("usage api failed for %s: status=%d", e.Date, e.StatusCode)
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
}

type Client struct {
	httpClient     *http.Client
	endpoint       string
	token          string
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("usage api token is required")
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse usage api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("usage api base url must be absolute: %s", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/usage"

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 1 * time.Second
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		// A zero Timeout leaves requests bounded only by ctx.
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint:       u.String(),
		token:          cfg.Token,
		limiter:        limiter,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch returns the JSON document the API serves for the given day.
func (c *Client) Fetch(ctx context.Context, date domain.Date) (domain.UsageRecord, error) {
	backoff := c.initialBackoff
	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attempts = attempt
		if err := ctx.Err(); err != nil {
			return domain.UsageRecord{}, fmt.Errorf("fetch usage for %s: %w", date, err)
		}

		payload, err := c.fetchOnce(ctx, date)
		if err == nil {
			return domain.UsageRecord{Date: date, Payload: payload}, nil
		}

		lastErr = err
		if !retryable(err) || attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return domain.UsageRecord{}, fmt.Errorf("fetch usage for %s: %w", date, ctx.Err())
		case <-time.After(backoff):
		}

		backoff = minDuration(backoff*2, c.maxBackoff)
	}

	if attempts > 1 {
		return domain.UsageRecord{}, fmt.Errorf("fetch usage after %d attempts: %w", attempts, lastErr)
	}
	return domain.UsageRecord{}, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, date domain.Date) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build usage request: %w", err)
	}

	q := req.URL.Query()
	q.Set("date", date.String())
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage request for %s: %w", date, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Date: date, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read usage response for %s: %w", date, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w for %s", ErrInvalidPayload, date)
	}
	return json.RawMessage(body), nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrInvalidPayload) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
