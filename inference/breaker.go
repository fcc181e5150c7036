package inference

import (
	"context"

	"github.com/quill-labs/chat-relay/internal/circuitbreaker"
	"github.com/quill-labs/chat-relay/internal/metrics"
)

// WithBreaker wraps client with a circuit breaker guarding the upstream.
// When the circuit is open, Complete fails immediately with an
// UnavailableError instead of spending the retry budget.
func WithBreaker(client Client, b *circuitbreaker.Breaker) Client {
	return &breakerClient{inner: client, breaker: b}
}

type breakerClient struct {
	inner   Client
	breaker *circuitbreaker.Breaker
}

func (c *breakerClient) Name() string { return c.inner.Name() }

func (c *breakerClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if !c.breaker.Allow() {
		metrics.CircuitBreakerState.Set(float64(circuitbreaker.StateOpen))
		return nil, &UnavailableError{Err: circuitbreaker.ErrOpen}
	}
	resp, err := c.inner.Complete(ctx, req)
	if err != nil {
		c.breaker.RecordFailure()
		metrics.CircuitBreakerState.Set(float64(c.breaker.State()))
		return nil, err
	}
	c.breaker.RecordSuccess()
	metrics.CircuitBreakerState.Set(float64(circuitbreaker.StateClosed))
	return resp, nil
}

func (c *breakerClient) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}
