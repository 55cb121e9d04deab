package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/repository"
)

// GatewayService is the upward-facing facade of the verification gateway.
// Whatever hosts the gateway (HTTP API, CLI) talks to this type only.
type GatewayService struct {
	ledger        CreditLedger
	providers     *ProviderManager
	lifecycle     *LifecycleManager
	bulk          *BulkOrchestrator
	verifications repository.VerificationRepository
	balances      map[string]*BalanceCache // provider name -> cache
	logger        *slog.Logger
	unitCost      float64
}

// NewGatewayService creates the gateway facade.
func NewGatewayService(
	ledger CreditLedger,
	providers *ProviderManager,
	lifecycle *LifecycleManager,
	bulk *BulkOrchestrator,
	verifications repository.VerificationRepository,
	balances map[string]*BalanceCache,
	unitCost float64,
	logger *slog.Logger,
) *GatewayService {
	return &GatewayService{
		ledger:        ledger,
		providers:     providers,
		lifecycle:     lifecycle,
		bulk:          bulk,
		verifications: verifications,
		balances:      balances,
		logger:        logger.With("service", "verification_gateway"),
		unitCost:      unitCost,
	}
}

// CreateVerification purchases one number with failover, charges the caller
// the unit price, persists the pending request and starts its poller.
func (s *GatewayService) CreateVerification(ctx context.Context, userID, service, country string, capability domain.Capability) (*domain.VerificationRequest, error) {
	if err := s.ledger.Reserve(ctx, userID, s.unitCost); err != nil {
		s.logger.WarnContext(ctx, "credit reservation failed", "user_id", userID, "amount", s.unitCost, "error", err)
		return nil, err
	}

	providerName, result, err := s.providers.PurchaseWithFailover(ctx, country, service, capability)
	if err != nil {
		// Nothing was purchased; hand the reservation back.
		if refundErr := s.ledger.Refund(ctx, userID, s.unitCost); refundErr != nil {
			s.logger.ErrorContext(ctx, "refund after failed purchase also failed", "user_id", userID, "error", refundErr)
		}
		return nil, err
	}

	v := domain.NewVerificationRequest(userID, providerName, result.ActivationID,
		result.PhoneNumber, service, country, capability, s.unitCost, s.lifecycle.cfg.MaxPollDuration)

	if err := s.verifications.Save(ctx, v); err != nil {
		// The purchase went through but cannot be tracked; give the credit
		// back and release the number rather than strand both.
		if refundErr := s.ledger.Refund(ctx, userID, s.unitCost); refundErr != nil {
			s.logger.ErrorContext(ctx, "refund after failed verification save also failed", "user_id", userID, "error", refundErr)
		}
		if client, ok := s.providers.Get(providerName); ok {
			if _, cancelErr := client.Cancel(ctx, result.ActivationID); cancelErr != nil {
				s.logger.WarnContext(ctx, "provider-side cancel after failed save failed",
					"provider", providerName, "activation_id", result.ActivationID, "error", cancelErr)
			}
		}
		return nil, fmt.Errorf("failed to persist verification: %w", err)
	}

	s.lifecycle.StartPolling(ctx, v)
	verificationsCreatedCounter.WithLabelValues(providerName, service).Inc()

	s.logger.InfoContext(ctx, "verification created",
		"verification_id", v.ID, "provider", providerName, "service", service, "country", country)
	return v, nil
}

// PollStatus returns the current state of a verification.
func (s *GatewayService) PollStatus(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	return s.verifications.GetByID(ctx, id)
}

// CancelVerification cancels a pending verification. The refund is issued by
// the billing layer when it consumes the terminal event.
func (s *GatewayService) CancelVerification(ctx context.Context, id string) error {
	return s.lifecycle.Cancel(ctx, id)
}

// CreateBulkPurchase runs a bulk purchase to completion and returns the
// finalized batch.
func (s *GatewayService) CreateBulkPurchase(ctx context.Context, userID, service, country string, quantity int) (*domain.BulkPurchaseBatch, error) {
	return s.bulk.CreateBatch(ctx, userID, service, country, quantity)
}

// GetBulkStatus returns a batch with its items.
func (s *GatewayService) GetBulkStatus(ctx context.Context, batchID string) (*domain.BulkPurchaseBatch, []*domain.VerificationRequest, error) {
	batch, err := s.bulk.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.bulk.ListBatchItems(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	return batch, items, nil
}

// ProviderBalances returns the cached balance of every registered provider.
// Providers whose balance cannot be fetched report an error string instead.
func (s *GatewayService) ProviderBalances(ctx context.Context) map[string]any {
	out := make(map[string]any, len(s.balances))
	for name, cache := range s.balances {
		balance, err := cache.Get(ctx)
		if err != nil {
			out[name] = map[string]string{"error": err.Error()}
			continue
		}
		out[name] = map[string]float64{"balance": balance}
	}
	return out
}

// ProviderHealth reports each registered provider's circuit state.
func (s *GatewayService) ProviderHealth() map[string]any {
	out := make(map[string]any)
	for _, name := range s.providers.Names() {
		client, ok := s.providers.Get(name)
		if !ok {
			continue
		}
		out[name] = client.Snapshot()
	}
	return out
}
