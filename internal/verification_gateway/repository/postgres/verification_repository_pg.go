package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
	"github.com/veriquick/golang_services/internal/verification_gateway/repository"
)

type pgVerificationRepository struct {
	db *pgxpool.Pool
}

// NewPgVerificationRepository creates a new instance for PostgreSQL.
func NewPgVerificationRepository(db *pgxpool.Pool) repository.VerificationRepository {
	return &pgVerificationRepository{db: db}
}

func (r *pgVerificationRepository) Save(ctx context.Context, v *domain.VerificationRequest) error {
	query := `
		INSERT INTO verification_requests (
			id, user_id, batch_id, provider, activation_id, phone_number,
			service_name, country, capability, cost, status, code,
			created_at, deadline, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`
	_, err := r.db.Exec(ctx, query,
		v.ID, v.UserID, v.BatchID, v.Provider, v.ActivationID, v.PhoneNumber,
		v.ServiceName, v.Country, v.Capability, v.Cost, v.Status, v.Code,
		v.CreatedAt, v.Deadline, v.UpdatedAt,
	)
	return err
}

func (r *pgVerificationRepository) UpdateStatus(ctx context.Context, id string, status domain.VerificationStatus) error {
	query := `UPDATE verification_requests SET status = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgVerificationRepository) UpdateCode(ctx context.Context, id string, code string, status domain.VerificationStatus) error {
	query := `UPDATE verification_requests SET code = $1, status = $2, updated_at = $3 WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, code, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgVerificationRepository) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	query := `
		SELECT id, user_id, batch_id, provider, activation_id, phone_number,
		       service_name, country, capability, cost, status, code,
		       created_at, deadline, updated_at
		FROM verification_requests WHERE id = $1
	`
	row := r.db.QueryRow(ctx, query, id)
	v, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *pgVerificationRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.VerificationRequest, error) {
	query := `
		SELECT id, user_id, batch_id, provider, activation_id, phone_number,
		       service_name, country, capability, cost, status, code,
		       created_at, deadline, updated_at
		FROM verification_requests WHERE batch_id = $1 ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.VerificationRequest
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func scanVerification(row pgx.Row) (*domain.VerificationRequest, error) {
	var v domain.VerificationRequest
	err := row.Scan(
		&v.ID, &v.UserID, &v.BatchID, &v.Provider, &v.ActivationID, &v.PhoneNumber,
		&v.ServiceName, &v.Country, &v.Capability, &v.Cost, &v.Status, &v.Code,
		&v.CreatedAt, &v.Deadline, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
