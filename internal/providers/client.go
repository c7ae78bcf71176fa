package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

var errGatewayStatus = errors.New("gateway returned server error")

// NewHTTPClient returns the outbound client used for gateway calls. Requests
// are traced and bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type gatewayResponse struct {
	StatusCode int
	Body       []byte
}

func (r *gatewayResponse) ok() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// gatewayClient performs one outbound call per operation behind a circuit
// breaker. Calls are never retried: a second initialize could create a
// duplicate transaction at the gateway.
type gatewayClient struct {
	processor string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*gatewayResponse]
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func newGatewayClient(processor string, s Settings, o options) *gatewayClient {
	threshold := s.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := s.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &gatewayClient{
		processor: processor,
		http:      o.httpClient,
		logger:    o.logger,
		metrics:   o.metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*gatewayResponse](gobreaker.Settings{
		Name:        processor,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("gateway circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues(processor).Set(float64(gobreaker.StateClosed))
	}
	return c
}

// do sends a request and returns the response for any status below 500.
// Transport failures, 5xx responses and an open breaker are returned as
// errors.
func (c *gatewayClient) do(ctx context.Context, operation, method, url, authorization string, payload any) (*gatewayResponse, error) {
	start := time.Now()
	resp, err := c.breaker.Execute(func() (*gatewayResponse, error) {
		return c.send(ctx, method, url, authorization, payload)
	})
	c.observe(operation, start, resp, err)
	if err != nil {
		return resp, fmt.Errorf("%s %s: %w", c.processor, operation, err)
	}
	return resp, nil
}

func (c *gatewayClient) send(ctx context.Context, method, url, authorization string, payload any) (*gatewayResponse, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	out := &gatewayResponse{StatusCode: res.StatusCode, Body: raw}
	if res.StatusCode >= http.StatusInternalServerError {
		return out, fmt.Errorf("%w: status %d", errGatewayStatus, res.StatusCode)
	}
	return out, nil
}

func (c *gatewayClient) observe(operation string, start time.Time, resp *gatewayResponse, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "circuit_open"
	case errors.Is(err, errGatewayStatus):
		outcome = "server_error"
	case err != nil:
		outcome = "transport_error"
	case !resp.ok():
		outcome = "client_error"
	}

	if c.metrics != nil {
		c.metrics.GatewayRequests.WithLabelValues(c.processor, operation, outcome).Inc()
		c.metrics.GatewayRequestDuration.WithLabelValues(c.processor, operation).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		c.logger.Error().Err(err).
			Str("operation", operation).
			Str("outcome", outcome).
			Dur("elapsed", time.Since(start)).
			Msg("gateway call failed")
	}
}
