// internal/provider/flutterwave/flutterwave.go
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"donation-service/config"
	"donation-service/internal/metrics"
	"donation-service/internal/provider"
	"donation-service/pkg/xerrors"

	"go.uber.org/zap"
)

const ProviderName = "flutterwave"

type FlutterwaveProvider struct {
	config     config.FlutterwaveConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ provider.PaymentGateway = (*FlutterwaveProvider)(nil)

func NewFlutterwaveProvider(cfg config.FlutterwaveConfig, logger *zap.Logger) *FlutterwaveProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &FlutterwaveProvider{
		config:     cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (f *FlutterwaveProvider) GetName() string {
	return ProviderName
}

// ============================================
// STANDARD CHECKOUT
// ============================================

type paymentRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      json.Number       `json:"amount"`
	Currency    string            `json:"currency"`
	RedirectURL string            `json:"redirect_url"`
	Customer    provider.Customer `json:"customer"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type paymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		Link string `json:"link"`
	} `json:"data"`
	Link string `json:"link"`
}

// CreatePaymentSession creates a Standard checkout and returns the hosted link.
func (f *FlutterwaveProvider) CreatePaymentSession(ctx context.Context, req *provider.PaymentSessionRequest) (string, error) {
	body := paymentRequest{
		TxRef:       req.Reference,
		Amount:      json.Number(req.Amount.String()),
		Currency:    req.Currency,
		RedirectURL: req.RedirectURL,
		Customer:    req.Customer,
		Meta:        req.Metadata,
	}

	endpoint := fmt.Sprintf("%s/v3/payments", f.baseURL)
	respBody, err := f.makeRequest(ctx, "create_payment", http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}

	var resp paymentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: failed to parse payment response: %v", xerrors.ErrGateway, err)
	}

	if resp.Status != "" && resp.Status != "success" {
		f.logger.Warn("flutterwave rejected payment session",
			zap.String("tx_ref", req.Reference),
			zap.String("status", resp.Status),
			zap.String("message", resp.Message))
		return "", fmt.Errorf("%w: payment session rejected: %s", xerrors.ErrGateway, resp.Message)
	}

	link := resp.Link
	if resp.Data != nil && resp.Data.Link != "" {
		link = resp.Data.Link
	}

	if link == "" {
		f.logger.Warn("flutterwave create response carried no link",
			zap.String("tx_ref", req.Reference),
			zap.String("status", resp.Status),
			zap.String("message", resp.Message))
		return "", fmt.Errorf("%w: no payment link in response", xerrors.ErrGateway)
	}

	return link, nil
}

// ============================================
// VERIFY
// ============================================

// VerifyByReference looks a transaction up by our tx_ref.
func (f *FlutterwaveProvider) VerifyByReference(ctx context.Context, txRef string) (*provider.TransactionView, error) {
	endpoint := fmt.Sprintf("%s/v3/transactions/verify_by_reference?tx_ref=%s", f.baseURL, url.QueryEscape(txRef))
	respBody, err := f.makeRequest(ctx, "verify_by_reference", http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var view provider.TransactionView
	if err := json.Unmarshal(respBody, &view); err != nil {
		return nil, fmt.Errorf("%w: failed to parse verify response: %v", xerrors.ErrGateway, err)
	}
	view.Raw = respBody

	return &view, nil
}

// makeRequest calls the Flutterwave API with the secret key. Any transport
// failure or non-2xx answer is reported as ErrGateway.
func (f *FlutterwaveProvider) makeRequest(ctx context.Context, operation, method, endpoint string, payload interface{}) ([]byte, error) {
	timer := metrics.ObserveGateway(operation)

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.config.SecretKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		timer.Done("transport_error")
		f.logger.Error("flutterwave request failed",
			zap.String("operation", operation),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", xerrors.ErrGateway, operation, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		timer.Done("read_error")
		return nil, fmt.Errorf("%w: failed to read response: %v", xerrors.ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		timer.Done(fmt.Sprintf("http_%d", resp.StatusCode))
		f.logger.Warn("flutterwave returned error status",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", truncate(responseBody, 512)))
		return nil, fmt.Errorf("%w: %s returned status %d", xerrors.ErrGateway, operation, resp.StatusCode)
	}

	timer.Done("ok")
	return responseBody, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
