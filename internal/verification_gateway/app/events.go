package app

import "time"

// NATS subjects published by the gateway.
const (
	// SubjectVerificationTerminal carries every terminal lifecycle transition.
	// The billing layer consumes timeout/cancelled events to issue refunds;
	// the gateway itself never moves money for single verifications.
	SubjectVerificationTerminal = "verification.lifecycle.terminal"
	// SubjectBatchFinalized is published once per bulk batch after all item
	// tasks have joined and the refund has been reconciled.
	SubjectBatchFinalized = "verification.bulk.finalized"
)

// VerificationTerminalEvent is the payload for SubjectVerificationTerminal.
type VerificationTerminalEvent struct {
	VerificationID string    `json:"verification_id"`
	UserID         string    `json:"user_id"`
	BatchID        *string   `json:"batch_id,omitempty"`
	Provider       string    `json:"provider"`
	Status         string    `json:"status"`
	Cost           float64   `json:"cost"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// BatchFinalizedEvent is the payload for SubjectBatchFinalized.
type BatchFinalizedEvent struct {
	BatchID        string    `json:"batch_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	Successful     int       `json:"successful"`
	Failed         int       `json:"failed"`
	RefundedAmount float64   `json:"refunded_amount"`
	OccurredAt     time.Time `json:"occurred_at"`
}
