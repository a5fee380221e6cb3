package zatca

import (
	"encoding/json"
	"time"

	"github.com/rezonia/zatca-engine/internal/model"
)

// Submission statuses reported by the regulator
const (
	StatusPass    = "PASS"
	StatusWarning = "WARNING"
	StatusError   = "ERROR"
)

// Message types in the engine's error taxonomy
const (
	// TypeNetwork marks transport failures with no HTTP response
	TypeNetwork = "NETWORK"
	// TypeAPI marks non-2xx responses without a parseable validation body
	TypeAPI = "API"
	// TypeError, TypeWarning and TypeInfo carry regulator validation messages
	TypeError   = "ERROR"
	TypeWarning = "WARNING"
	TypeInfo    = "INFO"
)

// Synthetic error codes the client generates itself
const (
	CodeFetchError        = "FETCH_ERROR"
	CodeCredentialExpired = "CREDENTIAL_EXPIRED"
)

// Message is a single entry in a submission or onboarding result
type Message struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
	Status   string `json:"status,omitempty"`
}

// SubmissionPayload is the body of every invoice submission. It is built
// once per invoice and reused verbatim on retries: resubmitting a
// regenerated hash or UUID for the same logical invoice would fork the chain.
type SubmissionPayload struct {
	InvoiceHash string `json:"invoiceHash"`
	UUID        string `json:"uuid"`
	Invoice     string `json:"invoice"` // base64 XML
}

// SubmissionResult is the uniform outcome of clearance, reporting and
// compliance submissions. Callers branch on Success and Status; transport
// and protocol failures share the same shape and differ only by entry Type.
type SubmissionResult struct {
	Success         bool      `json:"success"`
	Status          string    `json:"status"`
	InvoiceHash     string    `json:"invoice_hash,omitempty"`
	ClearanceStatus string    `json:"clearance_status,omitempty"`
	ReportingStatus string    `json:"reporting_status,omitempty"`
	ClearedInvoice  string    `json:"cleared_invoice,omitempty"`
	SignedInvoice   string    `json:"signed_invoice,omitempty"`
	QRCode          string    `json:"qr_code,omitempty"`
	Info            []Message `json:"info,omitempty"`
	Warnings        []Message `json:"warnings,omitempty"`
	Errors          []Message `json:"errors,omitempty"`
}

// Retryable reports whether the failure is transport-level. Validation
// errors are never retryable; they require caller-side correction.
func (r *SubmissionResult) Retryable() bool {
	if r.Success || len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if e.Type != TypeNetwork {
			return false
		}
	}
	return true
}

// CSIDResult is the outcome of a compliance or production CSID request
type CSIDResult struct {
	Success    bool             `json:"success"`
	Credential model.Credential `json:"credential,omitempty"`
	Errors     []Message        `json:"errors,omitempty"`
}

// Wire types for the regulator's JSON bodies

type complianceCSIDRequest struct {
	CSR string `json:"csr"`
}

type productionCSIDRequest struct {
	ComplianceRequestID string `json:"complianceRequestId"`
}

type wireCSIDResponse struct {
	RequestID           json.Number `json:"requestID"`
	BinarySecurityToken string      `json:"binarySecurityToken"`
	Secret              string      `json:"secret"`
	TokenExpiry         string      `json:"tokenExpiry"`
}

type wireErrorBody struct {
	Errors            []wireMessage          `json:"errors"`
	ValidationResults *wireValidationResults `json:"validationResults"`
}

type wireMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

type wireValidationResults struct {
	Status          string        `json:"status"`
	InfoMessages    []wireMessage `json:"infoMessages"`
	WarningMessages []wireMessage `json:"warningMessages"`
	ErrorMessages   []wireMessage `json:"errorMessages"`
}

type wireSubmissionResponse struct {
	InvoiceHash       string                 `json:"invoiceHash"`
	ClearanceStatus   string                 `json:"clearanceStatus"`
	ReportingStatus   string                 `json:"reportingStatus"`
	ClearedInvoice    string                 `json:"clearedInvoice"`
	SignedInvoice     string                 `json:"signedInvoice"`
	QRCode            string                 `json:"qrCode"`
	ValidationResults *wireValidationResults `json:"validationResults"`
}

func fromWire(m wireMessage, fallbackType string) Message {
	msgType := m.Type
	if msgType == "" {
		msgType = fallbackType
	}
	return Message{
		Type:     msgType,
		Code:     m.Code,
		Category: m.Category,
		Message:  m.Message,
		Status:   m.Status,
	}
}

// parseExpiry accepts the regulator's token expiry formats
func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
