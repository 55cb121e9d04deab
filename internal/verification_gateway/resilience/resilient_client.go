package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/provider"
)

// Config tunes retry and circuit-breaker behaviour for one wrapped client.
type Config struct {
	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	MaxRetries uint64
	// InitialDelay is the first backoff interval; it doubles each attempt.
	InitialDelay time.Duration
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold uint32
	// Cooldown is how long the circuit stays open before a half-open trial.
	Cooldown time.Duration
}

// DefaultConfig matches the gateway's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		InitialDelay:     time.Second,
		FailureThreshold: 5,
		Cooldown:         5 * time.Minute,
	}
}

// BreakerSnapshot is a point-in-time view of the circuit state, exposed for
// diagnostics endpoints and tests.
type BreakerSnapshot struct {
	State               string    `json:"state"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

// ResilientClient wraps one provider.Client with retry-with-backoff and a
// circuit breaker. Breaker state is owned by this instance alone; never share
// a ResilientClient's breaker across providers.
type ResilientClient struct {
	inner   provider.Client
	logger  *slog.Logger
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]

	mu       sync.Mutex
	openedAt time.Time
}

// NewResilientClient wraps inner with the given resilience config.
func NewResilientClient(inner provider.Client, cfg Config, logger *slog.Logger) *ResilientClient {
	rc := &ResilientClient{
		inner:  inner,
		logger: logger.With("component", "resilient_client", "provider", inner.GetName()),
		cfg:    cfg,
	}

	settings := gobreaker.Settings{
		Name:        inner.GetName(),
		MaxRequests: 1, // exactly one half-open trial call
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			rc.onStateChange(name, from, to)
		},
	}
	rc.breaker = gobreaker.NewCircuitBreaker[any](settings)
	return rc
}

func (rc *ResilientClient) onStateChange(name string, from, to gobreaker.State) {
	rc.mu.Lock()
	if to == gobreaker.StateOpen {
		rc.openedAt = time.Now().UTC()
	} else if to == gobreaker.StateClosed {
		rc.openedAt = time.Time{}
	}
	rc.mu.Unlock()

	rc.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	circuitTransitionsCounter.WithLabelValues(name, from.String(), to.String()).Inc()
}

// GetName returns the wrapped provider's registry name.
func (rc *ResilientClient) GetName() string { return rc.inner.GetName() }

// Snapshot returns the current circuit state for observability.
func (rc *ResilientClient) Snapshot() BreakerSnapshot {
	rc.mu.Lock()
	openedAt := rc.openedAt
	rc.mu.Unlock()

	return BreakerSnapshot{
		State:               rc.breaker.State().String(),
		ConsecutiveFailures: rc.breaker.Counts().ConsecutiveFailures,
		OpenedAt:            openedAt,
	}
}

// execute runs fn through the circuit breaker, retrying transient failures
// with exponential backoff. Permanent failures are surfaced immediately;
// exhausted retries surface as ErrServiceUnavailable.
func (rc *ResilientClient) execute(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	result, err := rc.breaker.Execute(func() (any, error) {
		return rc.retry(ctx, op, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			rc.logger.WarnContext(ctx, "call short-circuited", "op", op)
			providerRequestsCounter.WithLabelValues(rc.GetName(), op, "circuit_open").Inc()
			return nil, domain.ErrCircuitOpen
		}
		providerRequestsCounter.WithLabelValues(rc.GetName(), op, "error").Inc()
		return nil, err
	}
	providerRequestsCounter.WithLabelValues(rc.GetName(), op, "success").Inc()
	return result, nil
}

func (rc *ResilientClient) retry(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	attempt := 0
	operation := func() (any, error) {
		attempt++
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if domain.IsPermanent(err) {
			return nil, backoff.Permanent(err)
		}
		rc.logger.WarnContext(ctx, "transient provider failure", "op", op, "attempt", attempt, "error", err)
		providerRetriesCounter.WithLabelValues(rc.GetName(), op).Inc()
		return nil, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = rc.cfg.InitialDelay
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0
	expBackoff.MaxInterval = rc.cfg.InitialDelay << rc.cfg.MaxRetries
	expBackoff.MaxElapsedTime = 0 // bounded by MaxRetries, not wall clock

	result, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(expBackoff, rc.cfg.MaxRetries), ctx))
	if err != nil {
		if domain.IsPermanent(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
	}
	return result, nil
}

// PurchaseNumber calls the wrapped client's PurchaseNumber with resilience.
func (rc *ResilientClient) PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*provider.PurchaseResult, error) {
	result, err := rc.execute(ctx, "PurchaseNumber", func() (any, error) {
		return rc.inner.PurchaseNumber(ctx, country, service, capability)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.PurchaseResult), nil
}

// CheckCode calls the wrapped client's CheckCode with resilience.
func (rc *ResilientClient) CheckCode(ctx context.Context, activationID string) (*provider.CodeResult, error) {
	result, err := rc.execute(ctx, "CheckCode", func() (any, error) {
		return rc.inner.CheckCode(ctx, activationID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.CodeResult), nil
}

// Cancel calls the wrapped client's Cancel with resilience.
func (rc *ResilientClient) Cancel(ctx context.Context, activationID string) (bool, error) {
	result, err := rc.execute(ctx, "Cancel", func() (any, error) {
		return rc.inner.Cancel(ctx, activationID)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// GetBalance calls the wrapped client's GetBalance with resilience.
func (rc *ResilientClient) GetBalance(ctx context.Context) (float64, error) {
	result, err := rc.execute(ctx, "GetBalance", func() (any, error) {
		return rc.inner.GetBalance(ctx)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

// ValidateCredentials performs a single balance call to verify the wrapped
// client's credentials. The same client instance keeps being used afterwards;
// there is no separate throwaway validation client.
func (rc *ResilientClient) ValidateCredentials(ctx context.Context) error {
	_, err := rc.GetBalance(ctx)
	return err
}
