package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/zatca-engine/internal/model"
	"github.com/rezonia/zatca-engine/internal/stamp"
	"github.com/rezonia/zatca-engine/internal/zatca"
)

// CredentialInput is a CSID/secret pair supplied by the caller
type CredentialInput struct {
	CSID      string     `json:"csid"`
	Secret    string     `json:"secret"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (c CredentialInput) toModel() model.Credential {
	cred := model.Credential{CSID: c.CSID, Secret: c.Secret}
	if c.ExpiresAt != nil {
		cred.ExpiresAt = *c.ExpiresAt
	}
	return cred
}

// PartyInput identifies a seller or buyer
type PartyInput struct {
	Name        string `json:"name"`
	VATNumber   string `json:"vat_number"`
	StreetName  string `json:"street_name,omitempty"`
	CityName    string `json:"city_name,omitempty"`
	PostalZone  string `json:"postal_zone,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

func (p PartyInput) toModel() model.Party {
	return model.Party{
		Name:        p.Name,
		VATNumber:   p.VATNumber,
		StreetName:  p.StreetName,
		CityName:    p.CityName,
		PostalZone:  p.PostalZone,
		CountryCode: p.CountryCode,
	}
}

// LineItemInput is one invoice line
type LineItemInput struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	VATRate   decimal.Decimal `json:"vat_rate"`
}

// InvoiceInput is the caller-supplied invoice body. UUID and issue time are
// assigned by the engine when omitted.
type InvoiceInput struct {
	ID        string          `json:"id" binding:"required"`
	UUID      string          `json:"uuid,omitempty"`
	IssueTime *time.Time      `json:"issue_time,omitempty"`
	Currency  string          `json:"currency,omitempty"`
	Seller    PartyInput      `json:"seller"`
	Buyer     *PartyInput     `json:"buyer,omitempty"`
	Items     []LineItemInput `json:"items"`
}

func (in InvoiceInput) toModel() *model.Invoice {
	inv := &model.Invoice{
		ID:       in.ID,
		UUID:     in.UUID,
		Currency: in.Currency,
		Seller:   in.Seller.toModel(),
	}
	if in.IssueTime != nil {
		inv.IssueTime = *in.IssueTime
	}
	if in.Buyer != nil {
		inv.Buyer = in.Buyer.toModel()
	}
	for _, li := range in.Items {
		inv.Items = append(inv.Items, model.LineItem{
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
			VATRate:   li.VATRate,
		})
	}
	return inv
}

// InvoiceRequest is the body of the three submission endpoints
type InvoiceRequest struct {
	OrgID      string          `json:"org_id" binding:"required"`
	Credential CredentialInput `json:"credential"`
	Invoice    InvoiceInput    `json:"invoice" binding:"required"`
}

// SubmissionResponse is the outcome of an invoice submission
type SubmissionResponse struct {
	UUID         string                  `json:"uuid"`
	ICV          int64                   `json:"icv"`
	PreviousHash string                  `json:"previous_hash"`
	InvoiceHash  string                  `json:"invoice_hash"`
	Signature    string                  `json:"signature"`
	QRCode       string                  `json:"qr_code"`
	Attempts     int                     `json:"attempts"`
	Submission   *zatca.SubmissionResult `json:"submission"`
}

// ComplianceCSIDRequest starts onboarding. The server generates the keypair
// and CSR unless a private key is supplied.
type ComplianceCSIDRequest struct {
	OTP        string          `json:"otp" binding:"required"`
	CSRConfig  stamp.CSRConfig `json:"csr_config"`
	PrivateKey string          `json:"private_key,omitempty"` // PEM
	Curve      string          `json:"curve,omitempty"`
}

// ProductionCSIDRequest exchanges a compliance credential for a production one
type ProductionCSIDRequest struct {
	Credential          CredentialInput `json:"credential"`
	ComplianceRequestID string          `json:"compliance_request_id" binding:"required"`
}

// OnboardingResponse is the outcome of a CSID request. Key material is only
// present when the server generated it for this request.
type OnboardingResponse struct {
	Result     *zatca.CSIDResult `json:"result"`
	PrivateKey string            `json:"private_key,omitempty"`
	PublicKey  string            `json:"public_key,omitempty"`
	CSR        string            `json:"csr,omitempty"`
}

// ChainVerifyRequest replays an exported invoice sequence
type ChainVerifyRequest struct {
	OrgID     string   `json:"org_id" binding:"required"`
	Documents []string `json:"documents" binding:"required"` // base64 XML, chain order
}

// ChainVerifyResponse reports whether the sequence forms a valid chain
type ChainVerifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// QRDecodeRequest decodes a TLV QR payload
type QRDecodeRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// QRRecordOutput is one decoded TLV record. Value is the UTF-8 rendering,
// ValueBase64 the exact bytes.
type QRRecordOutput struct {
	Tag         int    `json:"tag"`
	Value       string `json:"value"`
	ValueBase64 string `json:"value_base64"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
