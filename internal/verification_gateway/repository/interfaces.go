package repository

import (
	"context"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// VerificationRepository persists verification requests. Implemented by
// repository/postgres for production and by mocks in tests.
type VerificationRepository interface {
	Save(ctx context.Context, v *domain.VerificationRequest) error
	UpdateStatus(ctx context.Context, id string, status domain.VerificationStatus) error
	// UpdateCode stores the received one-time code together with the status
	// transition that accompanies it.
	UpdateCode(ctx context.Context, id string, code string, status domain.VerificationStatus) error
	GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error)
	ListByBatch(ctx context.Context, batchID string) ([]*domain.VerificationRequest, error)
}

// BatchRepository persists bulk purchase batches.
type BatchRepository interface {
	Save(ctx context.Context, b *domain.BulkPurchaseBatch) error
	Update(ctx context.Context, b *domain.BulkPurchaseBatch) error
	GetByID(ctx context.Context, id string) (*domain.BulkPurchaseBatch, error)
}
