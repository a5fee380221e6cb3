// Package engine orchestrates one invoice submission end to end: reserve a
// chain slot, render the UBL document, hash and sign it, assemble the QR
// payload and drive the regulator protocol.
package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rezonia/zatca-engine/internal/chain"
	"github.com/rezonia/zatca-engine/internal/model"
	"github.com/rezonia/zatca-engine/internal/stamp"
	"github.com/rezonia/zatca-engine/internal/ubl"
	"github.com/rezonia/zatca-engine/internal/zatca"
)

// Mode selects the submission protocol for an invoice
type Mode string

const (
	// ModeClearance submits synchronously for pre-approval (B2B)
	ModeClearance Mode = "clearance"
	// ModeReporting reports asynchronously after the fact (B2C)
	ModeReporting Mode = "reporting"
	// ModeCompliance submits a test invoice against the compliance CSID
	ModeCompliance Mode = "compliance"
)

// Submitter is the protocol surface the pipeline drives. *zatca.Client
// implements it.
type Submitter interface {
	SubmitForClearance(ctx context.Context, cred model.Credential, payload zatca.SubmissionPayload) *zatca.SubmissionResult
	SubmitForReporting(ctx context.Context, cred model.Credential, payload zatca.SubmissionPayload) *zatca.SubmissionResult
	SubmitComplianceInvoice(ctx context.Context, cred model.Credential, payload zatca.SubmissionPayload) *zatca.SubmissionResult
}

// Config holds the pipeline's signing material and retry policy
type Config struct {
	// PrivateKeyPEM signs invoice hashes. Required.
	PrivateKeyPEM []byte
	// PublicKeyPEM and CertSignature enable phase-2 QR payloads when both
	// are present; otherwise the basic five-tag payload is produced.
	PublicKeyPEM  []byte
	CertSignature string // base64

	// MaxAttempts bounds submission tries per invoice. Only transport
	// failures are retried, always with the original payload.
	MaxAttempts int
	// RetryBackoff is the pause between attempts
	RetryBackoff time.Duration
}

// Pipeline issues invoices for any number of organizations
type Pipeline struct {
	sequencer *chain.Sequencer
	client    Submitter
	config    *Config
	logger    *zap.Logger
	newUUID   func() string
	now       func() time.Time
}

// PipelineOption configures the pipeline
type PipelineOption func(*Pipeline)

// WithLogger sets a structured logger
func WithLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithUUIDSource overrides UUID generation, for tests
func WithUUIDSource(fn func() string) PipelineOption {
	return func(p *Pipeline) {
		p.newUUID = fn
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates an invoice issuance pipeline
func NewPipeline(sequencer *chain.Sequencer, client Submitter, config *Config, opts ...PipelineOption) *Pipeline {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}

	p := &Pipeline{
		sequencer: sequencer,
		client:    client,
		config:    config,
		logger:    zap.NewNop(),
		newUUID:   func() string { return uuid.NewString() },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request is one invoice to issue and submit
type Request struct {
	OrgID      string
	Mode       Mode
	Credential model.Credential
	Invoice    *model.Invoice
}

// Result is the outcome of an issuance. The invoice's chain position is
// final once Result is returned, whatever the submission outcome: a failed
// submission occupies its ICV as a non-cleared invoice and is retried with
// the identical payload, never rebuilt.
type Result struct {
	Invoice     *model.Invoice          `json:"invoice"`
	XML         string                  `json:"xml"`
	InvoiceHash string                  `json:"invoice_hash"`
	Signature   string                  `json:"signature"`
	QRCode      string                  `json:"qr_code"`
	Payload     zatca.SubmissionPayload `json:"payload"`
	Submission  *zatca.SubmissionResult `json:"submission"`
	Attempts    int                     `json:"attempts"`
}

// Issue runs the full control flow for one invoice. The returned error
// covers engine-side failures (bad configuration, render errors, chain
// conflicts); regulator rejections live in Result.Submission.
func (p *Pipeline) Issue(ctx context.Context, req *Request) (*Result, error) {
	inv := req.Invoice
	if inv == nil {
		return nil, fmt.Errorf("engine: request carries no invoice")
	}
	if inv.UUID == "" {
		inv.UUID = p.newUUID()
	}
	if inv.IssueTime.IsZero() {
		inv.IssueTime = p.now().UTC()
	}
	if inv.Type == "" {
		if req.Mode == ModeClearance {
			inv.Type = model.InvoiceTypeStandard
		} else {
			inv.Type = model.InvoiceTypeSimplified
		}
	}

	slot, err := p.sequencer.Next(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	defer slot.Release() // no-op once committed

	inv.ICV = slot.ICV
	inv.PreviousHash = slot.PreviousHash

	xml, err := p.render(inv)
	if err != nil {
		return nil, err
	}

	invoiceHash := stamp.Hash([]byte(xml))

	signature, err := stamp.Sign([]byte(invoiceHash), p.config.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	qrCode, err := p.assembleQR(inv, invoiceHash, signature)
	if err != nil {
		return nil, err
	}

	// The chain position becomes final here. From this point the invoice
	// exists at this ICV even if submission fails; resubmission must reuse
	// the payload below.
	if err := slot.Commit(ctx, invoiceHash); err != nil {
		return nil, err
	}

	payload := zatca.SubmissionPayload{
		InvoiceHash: invoiceHash,
		UUID:        inv.UUID,
		Invoice:     base64.StdEncoding.EncodeToString([]byte(xml)),
	}

	submission, attempts := p.submit(ctx, req, payload)

	result := &Result{
		Invoice:     inv,
		XML:         xml,
		InvoiceHash: invoiceHash,
		Signature:   signature,
		QRCode:      qrCode,
		Payload:     payload,
		Submission:  submission,
		Attempts:    attempts,
	}
	if submission.QRCode != "" {
		result.QRCode = submission.QRCode
	}

	p.logger.Info("invoice issued",
		zap.String("org_id", req.OrgID),
		zap.String("mode", string(req.Mode)),
		zap.Int64("icv", inv.ICV),
		zap.String("status", submission.Status),
		zap.Bool("success", submission.Success))

	return result, nil
}

func (p *Pipeline) render(inv *model.Invoice) (string, error) {
	if inv.Type == model.InvoiceTypeSimplified {
		return ubl.BuildSimplifiedInvoice(inv)
	}
	return ubl.BuildInvoice(inv)
}

func (p *Pipeline) assembleQR(inv *model.Invoice, invoiceHash, signature string) (string, error) {
	base := stamp.QRData{
		SellerName: inv.Seller.Name,
		VATNumber:  inv.Seller.VATNumber,
		Timestamp:  inv.IssueTime.UTC().Format(time.RFC3339),
		Total:      ubl.FormatAmount(inv.TaxInclusiveAmount),
		VATTotal:   ubl.FormatAmount(inv.TaxAmount),
	}

	if len(p.config.PublicKeyPEM) > 0 && p.config.CertSignature != "" {
		return stamp.Phase2QR(stamp.Phase2Data{
			QRData:        base,
			InvoiceHash:   invoiceHash,
			Signature:     signature,
			PublicKey:     string(p.config.PublicKeyPEM),
			CertSignature: p.config.CertSignature,
		})
	}
	return stamp.BasicQR(base)
}

// submit drives the protocol with bounded retries. Validation errors stop
// immediately; only transport failures are retried, and every attempt
// sends the identical payload.
func (p *Pipeline) submit(ctx context.Context, req *Request, payload zatca.SubmissionPayload) (*zatca.SubmissionResult, int) {
	var result *zatca.SubmissionResult

	attempts := 0
	for attempts < p.config.MaxAttempts {
		attempts++
		result = p.dispatch(ctx, req, payload)
		if !result.Retryable() || attempts == p.config.MaxAttempts {
			break
		}

		p.logger.Warn("transport failure, retrying submission",
			zap.String("uuid", payload.UUID),
			zap.Int("attempt", attempts))

		select {
		case <-ctx.Done():
			return result, attempts
		case <-time.After(p.config.RetryBackoff):
		}
	}
	return result, attempts
}

func (p *Pipeline) dispatch(ctx context.Context, req *Request, payload zatca.SubmissionPayload) *zatca.SubmissionResult {
	switch req.Mode {
	case ModeClearance:
		return p.client.SubmitForClearance(ctx, req.Credential, payload)
	case ModeReporting:
		return p.client.SubmitForReporting(ctx, req.Credential, payload)
	case ModeCompliance:
		return p.client.SubmitComplianceInvoice(ctx, req.Credential, payload)
	default:
		return &zatca.SubmissionResult{
			Status: zatca.StatusError,
			Errors: []zatca.Message{{
				Type:    zatca.TypeError,
				Message: fmt.Sprintf("unknown submission mode %q", req.Mode),
			}},
		}
	}
}
