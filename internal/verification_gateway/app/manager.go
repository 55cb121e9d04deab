package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/provider"
)

// ProviderManager is the registry of resilient provider clients. The primary
// is tried first on failover; the rest follow in registration order. Order is
// config-driven and static — it is not reordered by observed success rate.
type ProviderManager struct {
	logger  *slog.Logger
	clients map[string]GatewayClient
	order   []string // registration order
	primary string
}

// NewProviderManager creates an empty registry with the given primary name.
func NewProviderManager(primary string, logger *slog.Logger) *ProviderManager {
	return &ProviderManager{
		logger:  logger.With("component", "provider_manager"),
		clients: make(map[string]GatewayClient),
		primary: primary,
	}
}

// Register adds a client under its own name. Registering the same name twice
// replaces the client but keeps its original position in the order.
func (m *ProviderManager) Register(client GatewayClient) {
	name := client.GetName()
	if _, exists := m.clients[name]; !exists {
		m.order = append(m.order, name)
	}
	m.clients[name] = client
	m.logger.Info("provider registered", "provider", name, "primary", name == m.primary)
}

// Get returns the client registered under name.
func (m *ProviderManager) Get(name string) (GatewayClient, bool) {
	c, ok := m.clients[name]
	return c, ok
}

// Primary returns the designated primary client.
func (m *ProviderManager) Primary() (GatewayClient, bool) {
	return m.Get(m.primary)
}

// Names returns the registered provider names, primary first, then the
// remaining registration order — the same order failover walks.
func (m *ProviderManager) Names() []string {
	names := make([]string, 0, len(m.order))
	if _, ok := m.clients[m.primary]; ok {
		names = append(names, m.primary)
	}
	for _, name := range m.order {
		if name != m.primary {
			names = append(names, name)
		}
	}
	return names
}

// PurchaseWithFailover tries the primary, then every other registered client
// in registration order, returning the first successful purchase and the name
// of the provider that served it. When every client fails, the aggregate
// error embeds each attempt's classified failure.
func (m *ProviderManager) PurchaseWithFailover(ctx context.Context, country, service string, capability domain.Capability) (string, *provider.PurchaseResult, error) {
	names := m.Names()
	if len(names) == 0 {
		return "", nil, fmt.Errorf("no providers registered")
	}

	attempts := make([]domain.FailoverAttemptError, 0, len(names))
	for _, name := range names {
		client := m.clients[name]
		result, err := client.PurchaseNumber(ctx, country, service, capability)
		if err == nil {
			if len(attempts) > 0 {
				m.logger.InfoContext(ctx, "purchase succeeded after failover",
					"provider", name, "failed_attempts", len(attempts))
			}
			return name, result, nil
		}
		m.logger.WarnContext(ctx, "purchase attempt failed", "provider", name, "error", err)
		attempts = append(attempts, domain.FailoverAttemptError{Provider: name, Err: err})
	}

	return "", nil, &domain.AllProvidersFailedError{Attempts: attempts}
}
