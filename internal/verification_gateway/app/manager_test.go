package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func failingPurchase(name string) func(ctx context.Context, country, service string, capability domain.Capability) (*provider.PurchaseResult, error) {
	return func(ctx context.Context, country, service string, capability domain.Capability) (*provider.PurchaseResult, error) {
		return nil, domain.NewTransientError(name, "PurchaseNumber", errors.New("down"))
	}
}

func TestProviderManager_PrimaryFirst(t *testing.T) {
	primary := &stubClient{name: "smspool"}
	secondary := &stubClient{name: "fivesim"}

	m := NewProviderManager("smspool", testLogger())
	m.Register(secondary) // registered before the primary on purpose
	m.Register(primary)

	assert.Equal(t, []string{"smspool", "fivesim"}, m.Names())

	name, result, err := m.PurchaseWithFailover(context.Background(), "US", "telegram", domain.CapabilitySMS)
	require.NoError(t, err)
	assert.Equal(t, "smspool", name)
	assert.NotNil(t, result)
	assert.Equal(t, 1, primary.purchaseCalls)
	assert.Equal(t, 0, secondary.purchaseCalls)
}

func TestProviderManager_FailsOverInRegistrationOrder(t *testing.T) {
	primary := &stubClient{name: "smspool", purchaseFn: failingPurchase("smspool")}
	second := &stubClient{name: "fivesim", purchaseFn: failingPurchase("fivesim")}
	third := &stubClient{name: "mock"}

	m := NewProviderManager("smspool", testLogger())
	m.Register(primary)
	m.Register(second)
	m.Register(third)

	name, result, err := m.PurchaseWithFailover(context.Background(), "US", "telegram", domain.CapabilitySMS)
	require.NoError(t, err)
	assert.Equal(t, "mock", name)
	assert.Equal(t, "act-1", result.ActivationID)
	assert.Equal(t, 1, primary.purchaseCalls)
	assert.Equal(t, 1, second.purchaseCalls)
	assert.Equal(t, 1, third.purchaseCalls)
}

func TestProviderManager_AggregateErrorWhenAllFail(t *testing.T) {
	first := &stubClient{name: "smspool", purchaseFn: failingPurchase("smspool")}
	second := &stubClient{name: "fivesim", purchaseFn: failingPurchase("fivesim")}

	m := NewProviderManager("smspool", testLogger())
	m.Register(first)
	m.Register(second)

	_, _, err := m.PurchaseWithFailover(context.Background(), "US", "telegram", domain.CapabilitySMS)
	require.Error(t, err)

	var allFailed *domain.AllProvidersFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Attempts, 2)
	assert.Equal(t, "smspool", allFailed.Attempts[0].Provider)
	assert.Equal(t, "fivesim", allFailed.Attempts[1].Provider)
	assert.Contains(t, err.Error(), "smspool")
	assert.Contains(t, err.Error(), "fivesim")
}

func TestProviderManager_PrimaryNotRegistered(t *testing.T) {
	m := NewProviderManager("smspool", testLogger())
	m.Register(&stubClient{name: "fivesim"})

	// Startup wiring checks Primary and refuses to run without it; the
	// registry itself just reports the absence.
	_, ok := m.Primary()
	assert.False(t, ok)
	assert.Equal(t, []string{"fivesim"}, m.Names())
}

func TestProviderManager_NoProviders(t *testing.T) {
	m := NewProviderManager("smspool", testLogger())
	_, _, err := m.PurchaseWithFailover(context.Background(), "US", "telegram", domain.CapabilitySMS)
	assert.Error(t, err)
}
