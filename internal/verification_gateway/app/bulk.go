package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/repository"
)

// BulkConfig tunes the bulk purchase orchestrator.
type BulkConfig struct {
	// MaxConcurrency bounds how many purchase tasks run at once.
	MaxConcurrency int
	// BaseUnitCost is the undiscounted per-number price charged to callers.
	BaseUnitCost float64
}

// BulkOrchestrator fans out a batch of independent number purchases under a
// concurrency limit, with tiered discount pricing, up-front credit
// reservation and a compensating refund for failed items.
type BulkOrchestrator struct {
	ledger        CreditLedger
	providers     *ProviderManager
	lifecycle     *LifecycleManager
	verifications repository.VerificationRepository
	batches       repository.BatchRepository
	events        EventPublisher
	logger        *slog.Logger
	cfg           BulkConfig
}

// NewBulkOrchestrator creates a bulk purchase orchestrator.
func NewBulkOrchestrator(
	ledger CreditLedger,
	providers *ProviderManager,
	lifecycle *LifecycleManager,
	verifications repository.VerificationRepository,
	batches repository.BatchRepository,
	events EventPublisher,
	cfg BulkConfig,
	logger *slog.Logger,
) *BulkOrchestrator {
	return &BulkOrchestrator{
		ledger:        ledger,
		providers:     providers,
		lifecycle:     lifecycle,
		verifications: verifications,
		batches:       batches,
		events:        events,
		logger:        logger.With("component", "bulk_orchestrator"),
		cfg:           cfg,
	}
}

// CreateBatch runs one bulk purchase to completion: validate, reserve credit,
// fan out the purchases, join, reconcile the refund. Per-item failures are
// recorded outcomes, not errors; the returned error is only for invalid input
// or a failed reservation.
func (o *BulkOrchestrator) CreateBatch(ctx context.Context, userID, service, country string, quantity int) (*domain.BulkPurchaseBatch, error) {
	if !domain.ValidBulkQuantity(quantity) {
		return nil, fmt.Errorf("%w: got %d, allowed [%d,%d]",
			domain.ErrInvalidQuantity, quantity, domain.MinBulkQuantity, domain.MaxBulkQuantity)
	}

	batch := domain.NewBulkPurchaseBatch(userID, service, country, quantity, o.cfg.BaseUnitCost)
	logger := o.logger.With("batch_id", batch.ID, "user_id", userID)

	// Reserve the full discounted total before any purchase attempt.
	if err := o.ledger.Reserve(ctx, userID, batch.Pricing.Total); err != nil {
		logger.WarnContext(ctx, "credit reservation failed", "total", batch.Pricing.Total, "error", err)
		return nil, err
	}
	logger.InfoContext(ctx, "credit reserved",
		"total", batch.Pricing.Total, "discount_pct", batch.Pricing.DiscountPct, "quantity", quantity)

	if err := o.batches.Save(ctx, batch); err != nil {
		// Reservation already happened; give the money back rather than strand it.
		if refundErr := o.ledger.Refund(ctx, userID, batch.Pricing.Total); refundErr != nil {
			logger.ErrorContext(ctx, "refund after failed batch save also failed", "error", refundErr)
		}
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}

	var (
		mu         sync.Mutex
		itemIDs    []string
		itemErrors []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrency)
	for i := 0; i < quantity; i++ {
		g.Go(func() error {
			providerName, result, err := o.providers.PurchaseWithFailover(gctx, country, service, domain.CapabilitySMS)
			if err != nil {
				mu.Lock()
				itemErrors = append(itemErrors, err.Error())
				mu.Unlock()
				return nil // one item's failure never cancels its siblings
			}

			v := domain.NewVerificationRequest(userID, providerName, result.ActivationID,
				result.PhoneNumber, service, country, domain.CapabilitySMS,
				batch.Pricing.EffectiveUnitCost, o.lifecycle.cfg.MaxPollDuration)
			v.BatchID = &batch.ID

			if err := o.verifications.Save(gctx, v); err != nil {
				logger.ErrorContext(gctx, "failed to persist bulk item", "error", err, "activation_id", result.ActivationID)
				mu.Lock()
				itemErrors = append(itemErrors, fmt.Sprintf("persist failed: %v", err))
				mu.Unlock()
				return nil
			}

			o.lifecycle.StartPolling(ctx, v) // outlives the batch join
			verificationsCreatedCounter.WithLabelValues(providerName, service).Inc()

			mu.Lock()
			itemIDs = append(itemIDs, v.ID)
			mu.Unlock()
			return nil
		})
	}
	g.Wait() // barrier: the batch never finalizes before every task reports

	batch.Finalize(len(itemIDs), len(itemErrors), itemIDs, itemErrors)

	if batch.RefundedAmount > 0 {
		if err := o.ledger.Refund(ctx, userID, batch.RefundedAmount); err != nil {
			logger.ErrorContext(ctx, "failed to refund failed items", "amount", batch.RefundedAmount, "error", err)
		}
	}

	if err := o.batches.Update(ctx, batch); err != nil {
		logger.ErrorContext(ctx, "failed to persist finalized batch", "error", err)
	}

	bulkBatchesCounter.WithLabelValues(string(batch.Status)).Inc()
	bulkRefundsHist.Observe(batch.RefundedAmount)
	o.publishFinalized(ctx, batch)

	logger.InfoContext(ctx, "batch finalized",
		"status", batch.Status, "successful", batch.Successful, "failed", batch.Failed,
		"refunded", batch.RefundedAmount)
	return batch, nil
}

// GetBatch returns a batch by ID.
func (o *BulkOrchestrator) GetBatch(ctx context.Context, batchID string) (*domain.BulkPurchaseBatch, error) {
	return o.batches.GetByID(ctx, batchID)
}

// ListBatchItems returns the verification requests created for a batch.
func (o *BulkOrchestrator) ListBatchItems(ctx context.Context, batchID string) ([]*domain.VerificationRequest, error) {
	return o.verifications.ListByBatch(ctx, batchID)
}

func (o *BulkOrchestrator) publishFinalized(ctx context.Context, batch *domain.BulkPurchaseBatch) {
	if o.events == nil {
		return
	}
	event := BatchFinalizedEvent{
		BatchID:        batch.ID,
		UserID:         batch.UserID,
		Status:         string(batch.Status),
		Successful:     batch.Successful,
		Failed:         batch.Failed,
		RefundedAmount: batch.RefundedAmount,
		OccurredAt:     *batch.FinalizedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		o.logger.Error("failed to marshal batch event", "error", err, "batch_id", batch.ID)
		return
	}
	if err := o.events.Publish(ctx, SubjectBatchFinalized, payload); err != nil {
		o.logger.WarnContext(ctx, "failed to publish batch event", "error", err, "batch_id", batch.ID)
	}
}
