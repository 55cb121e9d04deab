package domain

import (
	"time"

	"github.com/google/uuid"
)

// Capability is the channel type requested from a provider.
type Capability string

const (
	CapabilitySMS   Capability = "sms"
	CapabilityVoice Capability = "voice"
)

// VerificationStatus is the lifecycle state of a verification request.
type VerificationStatus string

const (
	StatusRequested VerificationStatus = "requested"
	StatusPending   VerificationStatus = "pending"
	StatusReceived  VerificationStatus = "received"
	StatusCompleted VerificationStatus = "completed"
	StatusTimeout   VerificationStatus = "timeout"
	StatusCancelled VerificationStatus = "cancelled"
)

// validTransitions encodes the forward-only lifecycle:
// requested -> pending -> {received, timeout}; pending -> cancelled;
// received -> completed. Terminal states have no outgoing edges.
var validTransitions = map[VerificationStatus][]VerificationStatus{
	StatusRequested: {StatusPending},
	StatusPending:   {StatusReceived, StatusTimeout, StatusCancelled},
	StatusReceived:  {StatusCompleted},
}

// CanTransition reports whether moving from -> to is a legal lifecycle step.
func CanTransition(from, to VerificationStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func (s VerificationStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// VerificationRequest is one purchased number awaiting its one-time code.
// Cost is fixed at creation and never recalculated. Status is mutated only
// through Transition.
type VerificationRequest struct {
	ID           string             `json:"id"` // UUID
	UserID       string             `json:"user_id"`
	BatchID      *string            `json:"batch_id,omitempty"` // Set when part of a bulk purchase
	Provider     string             `json:"provider"`
	ActivationID string             `json:"activation_id"` // Provider-side ID for this purchase
	PhoneNumber  string             `json:"phone_number"`
	ServiceName  string             `json:"service_name"`
	Country      string             `json:"country"`
	Capability   Capability         `json:"capability"`
	Cost         float64            `json:"cost"`
	Status       VerificationStatus `json:"status"`
	Code         *string            `json:"code,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	Deadline     time.Time          `json:"deadline"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewVerificationRequest creates a request in the pending state following a
// successful provider purchase.
func NewVerificationRequest(userID, providerName, activationID, phoneNumber, serviceName, country string, capability Capability, cost float64, maxPollDuration time.Duration) *VerificationRequest {
	now := time.Now().UTC()
	return &VerificationRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     providerName,
		ActivationID: activationID,
		PhoneNumber:  phoneNumber,
		ServiceName:  serviceName,
		Country:      country,
		Capability:   capability,
		Cost:         cost,
		Status:       StatusPending,
		CreatedAt:    now,
		Deadline:     now.Add(maxPollDuration),
		UpdatedAt:    now,
	}
}

// Transition moves the request to the next status, enforcing the lifecycle
// table. Returns ErrInvalidTransition if the step is not allowed.
func (v *VerificationRequest) Transition(to VerificationStatus) error {
	if !CanTransition(v.Status, to) {
		return ErrInvalidTransition
	}
	v.Status = to
	v.UpdatedAt = time.Now().UTC()
	return nil
}

// Expired reports whether the polling deadline has passed.
func (v *VerificationRequest) Expired(now time.Time) bool {
	return !now.Before(v.Deadline)
}
