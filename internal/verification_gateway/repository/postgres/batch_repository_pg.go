package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/repository"
)

type pgBatchRepository struct {
	db *pgxpool.Pool
}

// NewPgBatchRepository creates a new instance for PostgreSQL.
func NewPgBatchRepository(db *pgxpool.Pool) repository.BatchRepository {
	return &pgBatchRepository{db: db}
}

func (r *pgBatchRepository) Save(ctx context.Context, b *domain.BulkPurchaseBatch) error {
	query := `
		INSERT INTO bulk_purchase_batches (
			id, user_id, service_name, country, quantity,
			base_unit_cost, discount_pct, effective_unit_cost, total, discount_amount,
			successful, failed, status, refunded_amount, item_errors, created_at, finalized_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`
	_, err := r.db.Exec(ctx, query,
		b.ID, b.UserID, b.ServiceName, b.Country, b.Quantity,
		b.Pricing.BaseUnitCost, b.Pricing.DiscountPct, b.Pricing.EffectiveUnitCost,
		b.Pricing.Total, b.Pricing.DiscountAmount,
		b.Successful, b.Failed, b.Status, b.RefundedAmount, b.ItemErrors,
		b.CreatedAt, b.FinalizedAt,
	)
	return err
}

func (r *pgBatchRepository) Update(ctx context.Context, b *domain.BulkPurchaseBatch) error {
	query := `
		UPDATE bulk_purchase_batches
		SET successful = $1, failed = $2, status = $3, refunded_amount = $4,
		    item_errors = $5, finalized_at = $6
		WHERE id = $7
	`
	tag, err := r.db.Exec(ctx, query,
		b.Successful, b.Failed, b.Status, b.RefundedAmount, b.ItemErrors, b.FinalizedAt, b.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgBatchRepository) GetByID(ctx context.Context, id string) (*domain.BulkPurchaseBatch, error) {
	query := `
		SELECT id, user_id, service_name, country, quantity,
		       base_unit_cost, discount_pct, effective_unit_cost, total, discount_amount,
		       successful, failed, status, refunded_amount, item_errors, created_at, finalized_at
		FROM bulk_purchase_batches WHERE id = $1
	`
	var b domain.BulkPurchaseBatch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.UserID, &b.ServiceName, &b.Country, &b.Quantity,
		&b.Pricing.BaseUnitCost, &b.Pricing.DiscountPct, &b.Pricing.EffectiveUnitCost,
		&b.Pricing.Total, &b.Pricing.DiscountAmount,
		&b.Successful, &b.Failed, &b.Status, &b.RefundedAmount, &b.ItemErrors,
		&b.CreatedAt, &b.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
