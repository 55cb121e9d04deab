package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// PgCreditLedger implements the gateway's CreditLedger port against the
// user_credits table. Reserve is a single conditional UPDATE, so concurrent
// reservations against the same user cannot overdraw the balance.
type PgCreditLedger struct {
	db *pgxpool.Pool
}

// NewPgCreditLedger creates a new instance for PostgreSQL.
func NewPgCreditLedger(db *pgxpool.Pool) *PgCreditLedger {
	return &PgCreditLedger{db: db}
}

func (l *PgCreditLedger) Reserve(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %f", amount)
	}
	query := `
		UPDATE user_credits SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1
	`
	tag, err := l.db.Exec(ctx, query, amount, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the user does not exist or the balance is short; tell the
		// two apart so insufficient credit surfaces as its own error.
		var exists bool
		if err := l.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM user_credits WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInsufficientCredit
	}
	return nil
}

func (l *PgCreditLedger) Refund(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %f", amount)
	}
	query := `UPDATE user_credits SET balance = balance + $1, updated_at = now() WHERE user_id = $2`
	tag, err := l.db.Exec(ctx, query, amount, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (l *PgCreditLedger) Balance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := l.db.QueryRow(ctx, `SELECT balance FROM user_credits WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}
