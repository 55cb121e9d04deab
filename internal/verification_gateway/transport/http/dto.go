package http

import (
	"time"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// CreateVerificationRequest DTO for POST /verifications
type CreateVerificationRequest struct {
	Service    string `json:"service" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Capability string `json:"capability,omitempty"` // "sms" (default) or "voice"
}

// VerificationResponse DTO
type VerificationResponse struct {
	ID          string                    `json:"id"`
	Provider    string                    `json:"provider"`
	PhoneNumber string                    `json:"phone_number"`
	Service     string                    `json:"service"`
	Country     string                    `json:"country"`
	Capability  domain.Capability         `json:"capability"`
	Cost        float64                   `json:"cost"`
	Status      domain.VerificationStatus `json:"status"`
	Code        *string                   `json:"code,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	Deadline    time.Time                 `json:"deadline"`
}

// CreateBulkRequest DTO for POST /verifications/bulk
type CreateBulkRequest struct {
	Service  string `json:"service" validate:"required"`
	Country  string `json:"country" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=2,max=50"`
}

// BulkBatchResponse DTO
type BulkBatchResponse struct {
	BatchID        string                 `json:"batch_id"`
	Quantity       int                    `json:"quantity"`
	Status         domain.BatchStatus     `json:"status"`
	Successful     int                    `json:"successful"`
	Failed         int                    `json:"failed"`
	UnitCost       float64                `json:"unit_cost"`
	DiscountPct    float64                `json:"discount_pct"`
	DiscountAmount float64                `json:"discount_amount"`
	Total          float64                `json:"total"`
	RefundedAmount float64                `json:"refunded_amount"`
	ItemErrors     []string               `json:"item_errors,omitempty"`
	Items          []VerificationResponse `json:"items,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// GenericErrorResponse for API errors
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toVerificationResponse(v *domain.VerificationRequest) VerificationResponse {
	return VerificationResponse{
		ID:          v.ID,
		Provider:    v.Provider,
		PhoneNumber: v.PhoneNumber,
		Service:     v.ServiceName,
		Country:     v.Country,
		Capability:  v.Capability,
		Cost:        v.Cost,
		Status:      v.Status,
		Code:        v.Code,
		CreatedAt:   v.CreatedAt,
		Deadline:    v.Deadline,
	}
}

func toBulkBatchResponse(b *domain.BulkPurchaseBatch, items []*domain.VerificationRequest) BulkBatchResponse {
	resp := BulkBatchResponse{
		BatchID:        b.ID,
		Quantity:       b.Quantity,
		Status:         b.Status,
		Successful:     b.Successful,
		Failed:         b.Failed,
		UnitCost:       b.Pricing.EffectiveUnitCost,
		DiscountPct:    b.Pricing.DiscountPct,
		DiscountAmount: b.Pricing.DiscountAmount,
		Total:          b.Pricing.Total,
		RefundedAmount: b.RefundedAmount,
		ItemErrors:     b.ItemErrors,
		CreatedAt:      b.CreatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toVerificationResponse(item))
	}
	return resp
}
