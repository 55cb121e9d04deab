package app

import (
	"context"
	"sync"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/provider"
	"github.com/veriquick/golang_services/internal/verification_gateway/resilience"
)

// --- Shared test doubles for the app package ---

type stubClient struct {
	name       string
	purchaseFn func(ctx context.Context, country, service string, capability domain.Capability) (*provider.PurchaseResult, error)
	checkFn    func(ctx context.Context, activationID string) (*provider.CodeResult, error)
	cancelFn   func(ctx context.Context, activationID string) (bool, error)
	balanceFn  func(ctx context.Context) (float64, error)

	mu            sync.Mutex
	purchaseCalls int
	checkCalls    int
	cancelCalls   int
	balanceCalls  int
}

func (s *stubClient) GetName() string { return s.name }

func (s *stubClient) Snapshot() resilience.BreakerSnapshot {
	return resilience.BreakerSnapshot{State: "closed"}
}

func (s *stubClient) PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*provider.PurchaseResult, error) {
	s.mu.Lock()
	s.purchaseCalls++
	s.mu.Unlock()
	if s.purchaseFn != nil {
		return s.purchaseFn(ctx, country, service, capability)
	}
	return &provider.PurchaseResult{ActivationID: "act-1", PhoneNumber: "+15550000001", Cost: 0.40}, nil
}

func (s *stubClient) CheckCode(ctx context.Context, activationID string) (*provider.CodeResult, error) {
	s.mu.Lock()
	s.checkCalls++
	s.mu.Unlock()
	if s.checkFn != nil {
		return s.checkFn(ctx, activationID)
	}
	return &provider.CodeResult{RawStatus: "pending"}, nil
}

func (s *stubClient) Cancel(ctx context.Context, activationID string) (bool, error) {
	s.mu.Lock()
	s.cancelCalls++
	s.mu.Unlock()
	if s.cancelFn != nil {
		return s.cancelFn(ctx, activationID)
	}
	return true, nil
}

func (s *stubClient) GetBalance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	s.balanceCalls++
	s.mu.Unlock()
	if s.balanceFn != nil {
		return s.balanceFn(ctx)
	}
	return 42.0, nil
}

// memVerificationRepo is a mutex-guarded in-memory VerificationRepository.
type memVerificationRepo struct {
	mu    sync.Mutex
	items map[string]*domain.VerificationRequest
}

func newMemVerificationRepo() *memVerificationRepo {
	return &memVerificationRepo{items: make(map[string]*domain.VerificationRequest)}
}

func (r *memVerificationRepo) Save(ctx context.Context, v *domain.VerificationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *v
	r.items[v.ID] = &copied
	return nil
}

func (r *memVerificationRepo) UpdateStatus(ctx context.Context, id string, status domain.VerificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.Status = status
	return nil
}

func (r *memVerificationRepo) UpdateCode(ctx context.Context, id string, code string, status domain.VerificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.Code = &code
	v.Status = status
	return nil
}

func (r *memVerificationRepo) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (r *memVerificationRepo) ListByBatch(ctx context.Context, batchID string) ([]*domain.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.VerificationRequest
	for _, v := range r.items {
		if v.BatchID != nil && *v.BatchID == batchID {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memVerificationRepo) status(id string) domain.VerificationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.items[id]; ok {
		return v.Status
	}
	return ""
}

// memBatchRepo is a mutex-guarded in-memory BatchRepository.
type memBatchRepo struct {
	mu    sync.Mutex
	items map[string]*domain.BulkPurchaseBatch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{items: make(map[string]*domain.BulkPurchaseBatch)}
}

func (r *memBatchRepo) Save(ctx context.Context, b *domain.BulkPurchaseBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *b
	r.items[b.ID] = &copied
	return nil
}

func (r *memBatchRepo) Update(ctx context.Context, b *domain.BulkPurchaseBatch) error {
	return r.Save(ctx, b)
}

func (r *memBatchRepo) GetByID(ctx context.Context, id string) (*domain.BulkPurchaseBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

// stubLedger records reservations and refunds.
type stubLedger struct {
	mu         sync.Mutex
	balance    float64
	reserved   []float64
	refunded   []float64
	reserveErr error
}

func newStubLedger(balance float64) *stubLedger {
	return &stubLedger{balance: balance}
}

func (l *stubLedger) Reserve(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserveErr != nil {
		return l.reserveErr
	}
	if l.balance < amount {
		return domain.ErrInsufficientCredit
	}
	l.balance -= amount
	l.reserved = append(l.reserved, amount)
	return nil
}

func (l *stubLedger) Refund(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	l.refunded = append(l.refunded, amount)
	return nil
}

func (l *stubLedger) Balance(ctx context.Context, userID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

// stubPublisher collects published events.
type stubPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *stubPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *stubPublisher) published(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}
