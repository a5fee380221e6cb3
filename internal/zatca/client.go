// Package zatca implements the regulator-facing HTTP protocol: CSID
// onboarding and the clearance, reporting and compliance submission modes.
//
// Transport and HTTP-layer failures are normalized into the same result
// shape as validation failures, so calling code has a single decision point.
package zatca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/zatca-engine/internal/model"
)

// DefaultTimeout bounds a single regulator round trip
const DefaultTimeout = 30 * time.Second

// Config resolves the regulator's endpoints. URLs are deployment
// configuration, never hardcoded.
type Config struct {
	ComplianceAPIURL     string `json:"compliance_api_url" mapstructure:"compliance_api_url"`
	ProductionCSIDAPIURL string `json:"production_csid_api_url" mapstructure:"production_csid_api_url"`
	ClearanceAPIURL      string `json:"clearance_api_url" mapstructure:"clearance_api_url"`
	ReportingAPIURL      string `json:"reporting_api_url" mapstructure:"reporting_api_url"`
	Timeout              time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Client talks to the regulator's e-invoicing API
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets a structured logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the time source, for expiry tests
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a regulator API client
func NewClient(config *Config, opts ...ClientOption) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestComplianceCSID requests the first-stage credential pair. No prior
// credential exists at this point, so the call authenticates with the
// one-time code alone.
func (c *Client) RequestComplianceCSID(ctx context.Context, csr, otp string) *CSIDResult {
	headers := map[string]string{"OTP": otp}
	return c.requestCSID(ctx, c.config.ComplianceAPIURL, complianceCSIDRequest{CSR: csr}, headers, model.StageCompliance)
}

// RequestProductionCSID exchanges a completed compliance request for a
// production pair. Authenticates with the compliance CSID via Basic auth.
func (c *Client) RequestProductionCSID(ctx context.Context, compliance model.Credential, complianceRequestID string) *CSIDResult {
	if compliance.Expired(c.now()) {
		return &CSIDResult{Errors: []Message{expiredCredentialMessage()}}
	}
	headers := map[string]string{"Authorization": compliance.BasicAuth()}
	return c.requestCSID(ctx, c.config.ProductionCSIDAPIURL, productionCSIDRequest{ComplianceRequestID: complianceRequestID}, headers, model.StageProduction)
}

func (c *Client) requestCSID(ctx context.Context, url string, body any, headers map[string]string, stage model.CredentialStage) *CSIDResult {
	status, respBody, err := c.post(ctx, url, body, headers)
	if err != nil {
		c.logger.Warn("csid request failed", zap.String("stage", string(stage)), zap.Error(err))
		return &CSIDResult{Errors: []Message{networkMessage(err)}}
	}

	if status < 200 || status > 299 {
		return &CSIDResult{Errors: extractErrors(status, respBody)}
	}

	var wire wireCSIDResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return &CSIDResult{Errors: []Message{{
			Type:    TypeAPI,
			Code:    fmt.Sprintf("HTTP_%d", status),
			Message: fmt.Sprintf("unparseable CSID response: %v", err),
		}}}
	}

	c.logger.Info("csid issued",
		zap.String("stage", string(stage)),
		zap.String("request_id", wire.RequestID.String()))

	return &CSIDResult{
		Success: true,
		Credential: model.Credential{
			RequestID: wire.RequestID.String(),
			CSID:      wire.BinarySecurityToken,
			Secret:    wire.Secret,
			Stage:     stage,
			ExpiresAt: parseExpiry(wire.TokenExpiry),
		},
	}
}

// SubmitForClearance submits a standard invoice for synchronous clearance.
// The regulator may return a modified cleared invoice body and a QR code.
func (c *Client) SubmitForClearance(ctx context.Context, cred model.Credential, payload SubmissionPayload) *SubmissionResult {
	headers := map[string]string{"Clearance-Status": "1"}
	return c.submit(ctx, c.config.ClearanceAPIURL, cred, payload, headers)
}

// SubmitForReporting submits a simplified invoice for asynchronous
// reporting. No cleared-invoice override is returned.
func (c *Client) SubmitForReporting(ctx context.Context, cred model.Credential, payload SubmissionPayload) *SubmissionResult {
	return c.submit(ctx, c.config.ReportingAPIURL, cred, payload, nil)
}

// SubmitComplianceInvoice validates engine output against the regulator's
// schema using the compliance-stage credential pair.
func (c *Client) SubmitComplianceInvoice(ctx context.Context, cred model.Credential, payload SubmissionPayload) *SubmissionResult {
	return c.submit(ctx, c.config.ComplianceAPIURL+"/invoices", cred, payload, nil)
}

func (c *Client) submit(ctx context.Context, url string, cred model.Credential, payload SubmissionPayload, extraHeaders map[string]string) *SubmissionResult {
	if cred.Expired(c.now()) {
		return &SubmissionResult{
			Status: StatusError,
			Errors: []Message{expiredCredentialMessage()},
		}
	}

	headers := map[string]string{"Authorization": cred.BasicAuth()}
	for k, v := range extraHeaders {
		headers[k] = v
	}

	status, respBody, err := c.post(ctx, url, payload, headers)
	if err != nil {
		c.logger.Warn("submission transport failure",
			zap.String("uuid", payload.UUID), zap.Error(err))
		return &SubmissionResult{
			Status: StatusError,
			Errors: []Message{networkMessage(err)},
		}
	}

	var wire wireSubmissionResponse
	parseErr := json.Unmarshal(respBody, &wire)

	if status < 200 || status > 299 {
		return &SubmissionResult{
			Status:      StatusError,
			InvoiceHash: wire.InvoiceHash,
			Errors:      extractErrors(status, respBody),
		}
	}
	if parseErr != nil {
		return &SubmissionResult{
			Status: StatusError,
			Errors: []Message{{
				Type:    TypeAPI,
				Code:    fmt.Sprintf("HTTP_%d", status),
				Message: fmt.Sprintf("unparseable submission response: %v", parseErr),
			}},
		}
	}

	result := &SubmissionResult{
		InvoiceHash:     wire.InvoiceHash,
		ClearanceStatus: wire.ClearanceStatus,
		ReportingStatus: wire.ReportingStatus,
		ClearedInvoice:  wire.ClearedInvoice,
		SignedInvoice:   wire.SignedInvoice,
		QRCode:          wire.QRCode,
		Status:          StatusPass,
	}
	if wire.ValidationResults != nil {
		result.Status = wire.ValidationResults.Status
		for _, m := range wire.ValidationResults.InfoMessages {
			result.Info = append(result.Info, fromWire(m, TypeInfo))
		}
		for _, m := range wire.ValidationResults.WarningMessages {
			result.Warnings = append(result.Warnings, fromWire(m, TypeWarning))
		}
		for _, m := range wire.ValidationResults.ErrorMessages {
			result.Errors = append(result.Errors, fromWire(m, TypeError))
		}
	}

	// Any error entry makes the submission non-clearable, regardless of
	// what the status field claims.
	if len(result.Errors) > 0 {
		result.Status = StatusError
		result.Success = false
	} else {
		result.Success = true
	}
	return result
}

func (c *Client) post(ctx context.Context, url string, body any, headers map[string]string) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("zatca: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("zatca: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Version", "V2")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("zatca: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// extractErrors pulls validation messages out of a non-2xx body, or
// synthesizes a generic HTTP error when the body is opaque.
func extractErrors(status int, body []byte) []Message {
	var wire wireErrorBody
	if err := json.Unmarshal(body, &wire); err == nil {
		var msgs []Message
		if wire.ValidationResults != nil {
			for _, m := range wire.ValidationResults.ErrorMessages {
				msgs = append(msgs, fromWire(m, TypeError))
			}
		}
		for _, m := range wire.Errors {
			msgs = append(msgs, fromWire(m, TypeError))
		}
		if len(msgs) > 0 {
			return msgs
		}
	}
	return []Message{{
		Type:    TypeAPI,
		Code:    fmt.Sprintf("HTTP_%d", status),
		Message: fmt.Sprintf("regulator returned status %d", status),
	}}
}

func networkMessage(err error) Message {
	return Message{
		Type:    TypeNetwork,
		Code:    CodeFetchError,
		Message: err.Error(),
	}
}

func expiredCredentialMessage() Message {
	return Message{
		Type:    TypeError,
		Code:    CodeCredentialExpired,
		Message: "credential pair has expired and must be reissued",
	}
}
