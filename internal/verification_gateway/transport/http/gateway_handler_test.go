package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriquick/golang_services/internal/verification_gateway/app"
	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/provider"
	"github.com/veriquick/golang_services/internal/verification_gateway/resilience"
)

type fakeGatewayClient struct {
	name string
}

func (f *fakeGatewayClient) GetName() string { return f.name }

func (f *fakeGatewayClient) Snapshot() resilience.BreakerSnapshot {
	return resilience.BreakerSnapshot{State: "closed"}
}

func (f *fakeGatewayClient) PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*provider.PurchaseResult, error) {
	return &provider.PurchaseResult{ActivationID: "act-1", PhoneNumber: "+15550009999", Cost: 0.40}, nil
}

func (f *fakeGatewayClient) CheckCode(ctx context.Context, activationID string) (*provider.CodeResult, error) {
	return &provider.CodeResult{RawStatus: "pending"}, nil
}

func (f *fakeGatewayClient) Cancel(ctx context.Context, activationID string) (bool, error) {
	return true, nil
}

func (f *fakeGatewayClient) GetBalance(ctx context.Context) (float64, error) {
	return 42.0, nil
}

type fakeVerificationStore struct {
	mu    sync.Mutex
	items map[string]*domain.VerificationRequest
}

func (s *fakeVerificationStore) Save(ctx context.Context, v *domain.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *v
	s.items[v.ID] = &copied
	return nil
}

func (s *fakeVerificationStore) UpdateStatus(ctx context.Context, id string, status domain.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[id]; ok {
		v.Status = status
		return nil
	}
	return domain.ErrNotFound
}

func (s *fakeVerificationStore) UpdateCode(ctx context.Context, id string, code string, status domain.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[id]; ok {
		v.Code = &code
		v.Status = status
		return nil
	}
	return domain.ErrNotFound
}

func (s *fakeVerificationStore) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeVerificationStore) ListByBatch(ctx context.Context, batchID string) ([]*domain.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.VerificationRequest
	for _, v := range s.items {
		if v.BatchID != nil && *v.BatchID == batchID {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeBatchStore struct {
	mu    sync.Mutex
	items map[string]*domain.BulkPurchaseBatch
}

func (s *fakeBatchStore) Save(ctx context.Context, b *domain.BulkPurchaseBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *b
	s.items[b.ID] = &copied
	return nil
}

func (s *fakeBatchStore) Update(ctx context.Context, b *domain.BulkPurchaseBatch) error {
	return s.Save(ctx, b)
}

func (s *fakeBatchStore) GetByID(ctx context.Context, id string) (*domain.BulkPurchaseBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.items[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

type fakeLedger struct {
	mu      sync.Mutex
	balance float64
}

func (l *fakeLedger) Reserve(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance < amount {
		return domain.ErrInsufficientCredit
	}
	l.balance -= amount
	return nil
}

func (l *fakeLedger) Refund(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	return nil
}

func (l *fakeLedger) Balance(ctx context.Context, userID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

type handlerFixture struct {
	router    chi.Router
	store     *fakeVerificationStore
	ledger    *fakeLedger
	lifecycle *app.LifecycleManager
}

func newHandlerFixture(t *testing.T, balance float64) *handlerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := &fakeVerificationStore{items: make(map[string]*domain.VerificationRequest)}
	batches := &fakeBatchStore{items: make(map[string]*domain.BulkPurchaseBatch)}
	ledger := &fakeLedger{balance: balance}

	manager := app.NewProviderManager("smspool", logger)
	manager.Register(&fakeGatewayClient{name: "smspool"})

	// A short deadline keeps the always-pending pollers from outliving tests.
	lifecycle := app.NewLifecycleManager(store, manager, nil, app.LifecycleConfig{
		PollInterval:    time.Millisecond,
		MaxPollDuration: 5 * time.Millisecond,
	}, logger)
	t.Cleanup(lifecycle.Shutdown)

	bulk := app.NewBulkOrchestrator(ledger, manager, lifecycle, store, batches, nil,
		app.BulkConfig{MaxConcurrency: 5, BaseUnitCost: 0.50}, logger)

	service := app.NewGatewayService(ledger, manager, lifecycle, bulk, store, nil, 0.50, logger)

	router := chi.NewRouter()
	NewGatewayHandler(service, logger).RegisterRoutes(router)

	return &handlerFixture{router: router, store: store, ledger: ledger, lifecycle: lifecycle}
}

func (f *handlerFixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateVerification(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := f.do(t, http.MethodPost, "/verifications", "user-1",
		CreateVerificationRequest{Service: "telegram", Country: "US"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp VerificationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "smspool", resp.Provider)
	assert.Equal(t, "+15550009999", resp.PhoneNumber)
	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.Equal(t, 0.50, resp.Cost)
}

func TestHandler_CreateVerificationRequiresIdentity(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := f.do(t, http.MethodPost, "/verifications", "",
		CreateVerificationRequest{Service: "telegram", Country: "US"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CreateVerificationValidation(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := f.do(t, http.MethodPost, "/verifications", "user-1",
		CreateVerificationRequest{Service: "", Country: "US"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/verifications", "user-1",
		CreateVerificationRequest{Service: "telegram", Country: "US", Capability: "fax"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CreateVerificationInsufficientCredit(t *testing.T) {
	f := newHandlerFixture(t, 0.10)

	rec := f.do(t, http.MethodPost, "/verifications", "user-1",
		CreateVerificationRequest{Service: "telegram", Country: "US"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestHandler_GetVerificationNotFound(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := f.do(t, http.MethodGet, "/verifications/no-such-id", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CancelCompletedVerificationConflicts(t *testing.T) {
	f := newHandlerFixture(t, 100)

	v := domain.NewVerificationRequest("user-1", "smspool", "act-1", "+15550009999",
		"telegram", "US", domain.CapabilitySMS, 0.50, time.Minute)
	require.NoError(t, v.Transition(domain.StatusReceived))
	require.NoError(t, v.Transition(domain.StatusCompleted))
	require.NoError(t, f.store.Save(context.Background(), v))

	rec := f.do(t, http.MethodDelete, "/verifications/"+v.ID, "user-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_CreateBulk(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := f.do(t, http.MethodPost, "/verifications/bulk", "user-1",
		CreateBulkRequest{Service: "telegram", Country: "US", Quantity: 5})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp BulkBatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, domain.BatchStatusCompleted, resp.Status)
	assert.Equal(t, 5, resp.Successful)
	assert.Equal(t, 15.0, resp.DiscountPct)
	assert.InDelta(t, 2.125, resp.Total, 1e-9)
}

func TestHandler_CreateBulkQuantityOutOfRange(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := f.do(t, http.MethodPost, "/verifications/bulk", "user-1",
		CreateBulkRequest{Service: "telegram", Country: "US", Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ProviderHealth(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := f.do(t, http.MethodGet, "/providers/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]resilience.BreakerSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Contains(t, resp, "smspool")
	assert.Equal(t, "closed", resp["smspool"].State)
}
