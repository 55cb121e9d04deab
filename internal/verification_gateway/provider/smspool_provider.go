package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/veriquick/golang_services/internal/verification_gateway/domain"
)

// SMSPoolProvider speaks SMSPool's form-encoded HTTP API.
type SMSPoolProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewSMSPoolProvider creates an SMSPool adapter. A nil httpClient gets a
// 15s-timeout default.
func NewSMSPoolProvider(logger *slog.Logger, baseURL, apiKey string, httpClient *http.Client) *SMSPoolProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &SMSPoolProvider{
		logger:     logger.With("provider", "smspool"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (p *SMSPoolProvider) GetName() string { return "smspool" }

// smspoolPurchaseResponse models POST /purchase/sms.
type smspoolPurchaseResponse struct {
	Success     int     `json:"success"` // 1 on success
	OrderID     string  `json:"order_id"`
	PhoneNumber string  `json:"phonenumber"`
	Cost        float64 `json:"cost"`
	Message     string  `json:"message"` // Error detail when Success != 1
}

// smspoolCheckResponse models POST /sms/check.
// Status: 1 = pending, 3 = code arrived, 6 = refunded/cancelled, 5 = expired.
type smspoolCheckResponse struct {
	Status int    `json:"status"`
	SMS    string `json:"sms"`
	Resend int    `json:"resend"`
}

type smspoolCancelResponse struct {
	Success int    `json:"success"`
	Message string `json:"message"`
}

type smspoolBalanceResponse struct {
	Balance string `json:"balance"`
	Message string `json:"message"`
}

func (p *SMSPoolProvider) PurchaseNumber(ctx context.Context, country, service string, capability domain.Capability) (*PurchaseResult, error) {
	form := url.Values{}
	form.Set("key", p.apiKey)
	form.Set("country", country)
	form.Set("service", service)
	if capability == domain.CapabilityVoice {
		form.Set("type", "voice")
	}

	var resp smspoolPurchaseResponse
	if err := p.postForm(ctx, "PurchaseNumber", "/purchase/sms", form, &resp); err != nil {
		return nil, err
	}

	if resp.Success != 1 {
		return nil, p.classifyAPIMessage("PurchaseNumber", resp.Message)
	}

	p.logger.InfoContext(ctx, "number purchased", "order_id", resp.OrderID, "cost", resp.Cost)
	return &PurchaseResult{
		ActivationID: resp.OrderID,
		PhoneNumber:  resp.PhoneNumber,
		Cost:         resp.Cost,
	}, nil
}

func (p *SMSPoolProvider) CheckCode(ctx context.Context, activationID string) (*CodeResult, error) {
	form := url.Values{}
	form.Set("key", p.apiKey)
	form.Set("orderid", activationID)

	var resp smspoolCheckResponse
	if err := p.postForm(ctx, "CheckCode", "/sms/check", form, &resp); err != nil {
		return nil, err
	}

	result := &CodeResult{RawStatus: strconv.Itoa(resp.Status)}
	if resp.Status == 3 && resp.SMS != "" {
		result.Code = resp.SMS
	}
	return result, nil
}

func (p *SMSPoolProvider) Cancel(ctx context.Context, activationID string) (bool, error) {
	form := url.Values{}
	form.Set("key", p.apiKey)
	form.Set("orderid", activationID)

	var resp smspoolCancelResponse
	if err := p.postForm(ctx, "Cancel", "/sms/cancel", form, &resp); err != nil {
		return false, err
	}
	return resp.Success == 1, nil
}

func (p *SMSPoolProvider) GetBalance(ctx context.Context) (float64, error) {
	form := url.Values{}
	form.Set("key", p.apiKey)

	var resp smspoolBalanceResponse
	if err := p.postForm(ctx, "GetBalance", "/request/balance", form, &resp); err != nil {
		return 0, err
	}

	balance, err := strconv.ParseFloat(resp.Balance, 64)
	if err != nil {
		return 0, domain.NewPermanentError(p.GetName(), "GetBalance",
			fmt.Errorf("unparseable balance %q: %w", resp.Balance, err))
	}
	return balance, nil
}

// postForm executes one form-encoded call and decodes the JSON response,
// classifying transport and HTTP-level failures on the way.
func (p *SMSPoolProvider) postForm(ctx context.Context, op, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NewPermanentError(p.GetName(), op, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

	if err := classifyHTTPStatus(p.GetName(), op, httpResp.StatusCode); err != nil {
		p.logger.WarnContext(ctx, "non-2xx response", "op", op, "status_code", httpResp.StatusCode, "body", string(body))
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewTransientError(p.GetName(), op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// classifyAPIMessage maps SMSPool's in-band error messages onto the taxonomy.
// Pool exhaustion reads as transient (another pool/provider may have stock);
// credential and funds problems are permanent.
func (p *SMSPoolProvider) classifyAPIMessage(op, message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "invalid key") || strings.Contains(lower, "api key"):
		return domain.NewPermanentError(p.GetName(), op, fmt.Errorf("bad credentials: %s", message))
	case strings.Contains(lower, "balance") || strings.Contains(lower, "funds"):
		return domain.NewPermanentError(p.GetName(), op, fmt.Errorf("provider funds: %s", message))
	case strings.Contains(lower, "service") || strings.Contains(lower, "country"):
		return domain.NewPermanentError(p.GetName(), op, fmt.Errorf("invalid input: %s", message))
	default:
		return domain.NewTransientError(p.GetName(), op, fmt.Errorf("provider error: %s", message))
	}
}

// classifyHTTPStatus converts a non-2xx HTTP status into a classified error.
// 5xx and 429 are retryable; everything else 4xx is not.
func classifyHTTPStatus(providerName, op string, statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode >= 500 || statusCode == http.StatusTooManyRequests:
		return domain.NewTransientError(providerName, op, fmt.Errorf("http status %d", statusCode))
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.NewPermanentError(providerName, op, fmt.Errorf("bad credentials (http %d)", statusCode))
	default:
		return domain.NewPermanentError(providerName, op, fmt.Errorf("http status %d", statusCode))
	}
}
