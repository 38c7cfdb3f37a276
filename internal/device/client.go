package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

// Client is the shared HTTP transport for the pull and webform families.
// Each call gets a hard timeout, transient failures (timeouts, connection
// resets, 5xx) are retried with exponential backoff up to the configured
// attempt bound, and a per-endpoint circuit breaker sheds load from a device
// endpoint that keeps failing. Auth rejections and other 4xx responses are
// permanent and bypass both retry and breaker half-open probing.
type Client struct {
	http    *http.Client
	retries int
	logger  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewClient builds the shared transport. retries counts total attempts per
// call; values below 1 collapse to a single attempt.
func NewClient(timeout time.Duration, retries int, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retries < 1 {
		retries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		retries:  retries,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

func (c *Client) breaker(endpoint string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[endpoint]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    endpoint,
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[endpoint] = cb
	return cb
}

// PostJSON posts the payload to the endpoint and returns the response body.
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request for %s: %w", endpoint, err)
	}

	cb := c.breaker(endpoint)

	attempt := func() ([]byte, error) {
		data, err := cb.Execute(func() ([]byte, error) {
			return c.post(ctx, endpoint, body)
		})
		// An open breaker cannot close mid-call; retrying would only burn
		// the attempt budget.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}

	var out []byte
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retries-1)), ctx)
	err = backoff.RetryNotify(func() error {
		data, err := attempt()
		if err != nil {
			return err
		}
		out = data
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.logger.Sugar().Warnw("device call retrying", "endpoint", endpoint, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request for %s: %w", endpoint, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection errors are transient.
		return nil, appErrors.Wrap(err, appErrors.ErrDeviceTimeout.Code, appErrors.ErrDeviceTimeout.Status, "device call failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(appErrors.Clone(appErrors.ErrDeviceAuth, fmt.Sprintf("endpoint %s returned %d", endpoint, resp.StatusCode)))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(fmt.Errorf("endpoint %s returned %d", endpoint, resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("endpoint %s returned %d", endpoint, resp.StatusCode)
	}

	return data, nil
}
