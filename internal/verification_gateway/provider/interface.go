package provider

import (
	"context"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// PurchaseResult holds the outcome of a successful number purchase.
type PurchaseResult struct {
	ActivationID string  // The provider's ID for this activation/order
	PhoneNumber  string  // The rented number, E.164-ish as the provider reports it
	Cost         float64 // What the provider charged us for this number
}

// CodeResult holds the outcome of a code check. Code is empty while no
// one-time code has arrived yet; RawStatus carries the provider's own status
// string for logging and diagnostics.
type CodeResult struct {
	Code      string
	RawStatus string
}

// Client is the capability contract every provider adapter implements.
// All operations are fallible and must classify their failures as
// domain.ProviderError (transient vs permanent) before returning.
type Client interface {
	// PurchaseNumber rents a number for the given country/service/capability.
	PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*PurchaseResult, error)
	// CheckCode polls for the one-time code of a previous purchase.
	CheckCode(ctx context.Context, activationID string) (*CodeResult, error)
	// Cancel releases a rented number. The bool reports whether the provider
	// actually cancelled the activation.
	Cancel(ctx context.Context, activationID string) (bool, error)
	// GetBalance returns the account balance held with this provider.
	GetBalance(ctx context.Context) (float64, error)
	// GetName returns the registry name of the provider (e.g. "smspool", "fivesim").
	GetName() string
}
