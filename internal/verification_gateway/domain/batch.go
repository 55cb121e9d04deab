package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the derived outcome of a bulk purchase.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusPartial    BatchStatus = "partial"
	BatchStatusFailed     BatchStatus = "failed"
)

const (
	// MinBulkQuantity and MaxBulkQuantity bound a bulk purchase request.
	MinBulkQuantity = 2
	MaxBulkQuantity = 50
)

// DiscountPercent returns the tier discount for a bulk quantity:
// 2-4 -> 5%, 5-9 -> 15%, 10-19 -> 25%, 20+ -> 30%.
func DiscountPercent(quantity int) float64 {
	switch {
	case quantity >= 20:
		return 30
	case quantity >= 10:
		return 25
	case quantity >= 5:
		return 15
	case quantity >= MinBulkQuantity:
		return 5
	default:
		return 0
	}
}

// BulkPricing is the fixed pricing of a batch, computed once at admission.
type BulkPricing struct {
	BaseUnitCost      float64 `json:"base_unit_cost"`
	DiscountPct       float64 `json:"discount_pct"`
	EffectiveUnitCost float64 `json:"effective_unit_cost"`
	Total             float64 `json:"total"`
	DiscountAmount    float64 `json:"discount_amount"`
}

// PriceBulk computes tiered pricing for quantity numbers at baseUnitCost each.
func PriceBulk(quantity int, baseUnitCost float64) BulkPricing {
	pct := DiscountPercent(quantity)
	total := baseUnitCost * float64(quantity) * (1 - pct/100)
	return BulkPricing{
		BaseUnitCost:      baseUnitCost,
		DiscountPct:       pct,
		EffectiveUnitCost: baseUnitCost * (1 - pct/100),
		Total:             total,
		DiscountAmount:    baseUnitCost*float64(quantity) - total,
	}
}

// BulkPurchaseBatch tracks one bulk purchase across its independent item tasks.
// Status is derived from the success/failure counts at finalization, never set
// directly by callers.
type BulkPurchaseBatch struct {
	ID             string      `json:"batch_id"` // UUID
	UserID         string      `json:"user_id"`
	ServiceName    string      `json:"service_name"`
	Country        string      `json:"country"`
	Quantity       int         `json:"quantity"`
	Pricing        BulkPricing `json:"pricing"`
	ItemIDs        []string    `json:"item_ids"` // VerificationRequest IDs for successful items
	ItemErrors     []string    `json:"item_errors,omitempty"`
	Successful     int         `json:"successful"`
	Failed         int         `json:"failed"`
	Status         BatchStatus `json:"status"`
	RefundedAmount float64     `json:"refunded_amount"`
	CreatedAt      time.Time   `json:"created_at"`
	FinalizedAt    *time.Time  `json:"finalized_at,omitempty"`
}

// NewBulkPurchaseBatch creates a processing batch with pricing fixed up front.
func NewBulkPurchaseBatch(userID, serviceName, country string, quantity int, baseUnitCost float64) *BulkPurchaseBatch {
	return &BulkPurchaseBatch{
		ID:          uuid.NewString(),
		UserID:      userID,
		ServiceName: serviceName,
		Country:     country,
		Quantity:    quantity,
		Pricing:     PriceBulk(quantity, baseUnitCost),
		Status:      BatchStatusProcessing,
		CreatedAt:   time.Now().UTC(),
	}
}

// Finalize records the joined results of all item tasks. The refunded amount
// is always failed * effective unit cost.
func (b *BulkPurchaseBatch) Finalize(successful, failed int, itemIDs, itemErrors []string) {
	b.Successful = successful
	b.Failed = failed
	b.ItemIDs = itemIDs
	b.ItemErrors = itemErrors
	b.RefundedAmount = float64(failed) * b.Pricing.EffectiveUnitCost

	switch {
	case successful == b.Quantity:
		b.Status = BatchStatusCompleted
	case successful > 0:
		b.Status = BatchStatusPartial
	default:
		b.Status = BatchStatusFailed
	}

	now := time.Now().UTC()
	b.FinalizedAt = &now
}

// ValidBulkQuantity reports whether quantity is within [MinBulkQuantity, MaxBulkQuantity].
func ValidBulkQuantity(quantity int) bool {
	return quantity >= MinBulkQuantity && quantity <= MaxBulkQuantity
}
