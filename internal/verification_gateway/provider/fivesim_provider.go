package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// FiveSimProvider speaks 5sim's JSON REST API with Bearer token auth.
type FiveSimProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewFiveSimProvider creates a 5sim adapter. A nil httpClient gets a
// 15s-timeout default.
func NewFiveSimProvider(logger *slog.Logger, baseURL, apiKey string, httpClient *http.Client) *FiveSimProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &FiveSimProvider{
		logger:     logger.With("provider", "fivesim"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (p *FiveSimProvider) GetName() string { return "fivesim" }

// fivesimOrderResponse models GET /user/buy/activation/... and /user/check/{id}.
type fivesimOrderResponse struct {
	ID     int64           `json:"id"`
	Phone  string          `json:"phone"`
	Price  float64         `json:"price"`
	Status string          `json:"status"` // PENDING, RECEIVED, CANCELED, TIMEOUT, FINISHED
	SMS    []fivesimSMS    `json:"sms"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type fivesimSMS struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type fivesimProfileResponse struct {
	ID      int64   `json:"id"`
	Email   string  `json:"email"`
	Balance float64 `json:"balance"`
}

func (p *FiveSimProvider) PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*PurchaseResult, error) {
	// 5sim's activation products are SMS-only; voice rentals go through a
	// different product family this adapter does not offer.
	if capability == domain.CapabilityVoice {
		return nil, domain.NewPermanentError(p.GetName(), "PurchaseNumber",
			fmt.Errorf("capability %q not supported", capability))
	}

	path := fmt.Sprintf("/user/buy/activation/%s/any/%s", country, service)
	var resp fivesimOrderResponse
	if err := p.get(ctx, "PurchaseNumber", path, &resp); err != nil {
		return nil, err
	}

	if resp.ID == 0 {
		return nil, domain.NewTransientError(p.GetName(), "PurchaseNumber",
			fmt.Errorf("no number allocated: %s", string(resp.Error)))
	}

	p.logger.InfoContext(ctx, "number purchased", "order_id", resp.ID, "price", resp.Price)
	return &PurchaseResult{
		ActivationID: strconv.FormatInt(resp.ID, 10),
		PhoneNumber:  resp.Phone,
		Cost:         resp.Price,
	}, nil
}

func (p *FiveSimProvider) CheckCode(ctx context.Context, activationID string) (*CodeResult, error) {
	var resp fivesimOrderResponse
	if err := p.get(ctx, "CheckCode", "/user/check/"+activationID, &resp); err != nil {
		return nil, err
	}

	result := &CodeResult{RawStatus: resp.Status}
	if len(resp.SMS) > 0 && resp.SMS[0].Code != "" {
		result.Code = resp.SMS[0].Code
	}
	return result, nil
}

func (p *FiveSimProvider) Cancel(ctx context.Context, activationID string) (bool, error) {
	var resp fivesimOrderResponse
	if err := p.get(ctx, "Cancel", "/user/cancel/"+activationID, &resp); err != nil {
		return false, err
	}
	return resp.Status == "CANCELED", nil
}

func (p *FiveSimProvider) GetBalance(ctx context.Context) (float64, error) {
	var resp fivesimProfileResponse
	if err := p.get(ctx, "GetBalance", "/user/profile", &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

func (p *FiveSimProvider) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return domain.NewPermanentError(p.GetName(), op, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	httpResp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.WarnContext(ctx, "request failed", "op", op, "error", err)
		return domain.NewTransientError(p.GetName(), op, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.NewTransientError(p.GetName(), op, fmt.Errorf("reading response: %w", err))
	}

	// 5sim reports "no free phones" and "not enough user balance" as plain-text
	// 400s; the latter is a permanent account problem, the former is stock.
	if httpResp.StatusCode == http.StatusBadRequest {
		text := strings.ToLower(strings.TrimSpace(string(body)))
		if strings.Contains(text, "balance") {
			return domain.NewPermanentError(p.GetName(), op, fmt.Errorf("provider funds: %s", text))
		}
		if strings.Contains(text, "no free phones") {
			return domain.NewTransientError(p.GetName(), op, fmt.Errorf("no stock: %s", text))
		}
		return domain.NewPermanentError(p.GetName(), op, fmt.Errorf("bad request: %s", text))
	}

	if err := classifyHTTPStatus(p.GetName(), op, httpResp.StatusCode); err != nil {
		p.logger.WarnContext(ctx, "non-2xx response", "op", op, "status_code", httpResp.StatusCode)
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewTransientError(p.GetName(), op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
