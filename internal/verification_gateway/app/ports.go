package app

import (
	"context"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/provider"
	"github.com/veriquick/golang_services/internal/verification_gateway/resilience"
)

// CreditLedger is the billing collaborator the gateway reserves and refunds
// caller credit through. Implemented by a gRPC client or, in this deployment,
// by the postgres ledger repository.
type CreditLedger interface {
	// Reserve atomically deducts amount from the user's available credit.
	// Returns domain.ErrInsufficientCredit when the balance does not cover it.
	Reserve(ctx context.Context, userID string, amount float64) error
	// Refund credits amount back to the user's balance.
	Refund(ctx context.Context, userID string, amount float64) error
	// Balance returns the user's available credit.
	Balance(ctx context.Context, userID string) (float64, error)
}

// EventPublisher publishes gateway events (terminal verification transitions,
// finalized batches) for downstream consumers such as the billing layer.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// GatewayClient is the resilient provider surface the manager, lifecycle and
// orchestrator operate against. *resilience.ResilientClient satisfies it.
type GatewayClient interface {
	PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*provider.PurchaseResult, error)
	CheckCode(ctx context.Context, activationID string) (*provider.CodeResult, error)
	Cancel(ctx context.Context, activationID string) (bool, error)
	GetBalance(ctx context.Context) (float64, error)
	GetName() string
	Snapshot() resilience.BreakerSnapshot
}
