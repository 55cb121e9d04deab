package provider

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// MockProvider is a simulated verification provider for development and tests.
// It allocates fake numbers, delivers a fake code after codeDelay, and can
// simulate transient failures at a configurable rate.
type MockProvider struct {
	logger    *slog.Logger
	name      string
	failRate  float64 // Chance to simulate a transient failure (0.0 to 1.0)
	codeDelay time.Duration
	unitCost  float64
	balance   float64

	mu          sync.Mutex
	activations map[string]time.Time // activation ID -> purchase time
}

// NewMockProvider creates a new MockProvider.
func NewMockProvider(logger *slog.Logger, name string, failRate float64, codeDelay time.Duration) *MockProvider {
	if name == "" {
		name = "mock-provider"
	}
	return &MockProvider{
		logger:      logger.With("provider", name),
		name:        name,
		failRate:    failRate,
		codeDelay:   codeDelay,
		unitCost:    0.50,
		balance:     100.0,
		activations: make(map[string]time.Time),
	}
}

func (p *MockProvider) GetName() string { return p.name }

func (p *MockProvider) maybeFail(op string) error {
	if rand.Float64() < p.failRate {
		p.logger.Warn("simulated failure", "op", op)
		return domain.NewTransientError(p.name, op, fmt.Errorf("simulated network failure"))
	}
	return nil
}

func (p *MockProvider) PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*PurchaseResult, error) {
	if err := p.maybeFail("PurchaseNumber"); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.activations[id] = time.Now()
	p.balance -= p.unitCost
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "number purchased (simulated)", "activation_id", id, "country", country, "service", service)
	return &PurchaseResult{
		ActivationID: id,
		PhoneNumber:  fmt.Sprintf("+1555%07d", rand.Intn(10000000)),
		Cost:         p.unitCost,
	}, nil
}

func (p *MockProvider) CheckCode(ctx context.Context, activationID string) (*CodeResult, error) {
	if err := p.maybeFail("CheckCode"); err != nil {
		return nil, err
	}

	p.mu.Lock()
	purchasedAt, ok := p.activations[activationID]
	p.mu.Unlock()
	if !ok {
		return nil, domain.NewPermanentError(p.name, "CheckCode", fmt.Errorf("unknown activation %s", activationID))
	}

	if time.Since(purchasedAt) < p.codeDelay {
		return &CodeResult{RawStatus: "pending"}, nil
	}
	return &CodeResult{Code: fmt.Sprintf("%06d", rand.Intn(1000000)), RawStatus: "received"}, nil
}

func (p *MockProvider) Cancel(ctx context.Context, activationID string) (bool, error) {
	if err := p.maybeFail("Cancel"); err != nil {
		return false, err
	}

	p.mu.Lock()
	_, ok := p.activations[activationID]
	delete(p.activations, activationID)
	p.mu.Unlock()
	return ok, nil
}

func (p *MockProvider) GetBalance(ctx context.Context) (float64, error) {
	if err := p.maybeFail("GetBalance"); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}
