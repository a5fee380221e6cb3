package zatcalib

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/zatca-engine/internal/chain"
	"github.com/rezonia/zatca-engine/internal/engine"
	"github.com/rezonia/zatca-engine/internal/stamp"
	"github.com/rezonia/zatca-engine/internal/zatca"
)

// Endpoints resolves the regulator's API URLs
type Endpoints = zatca.Config

// Result is the outcome of an invoice issuance
type Result = engine.Result

// SubmissionResult is the uniform regulator response shape
type SubmissionResult = zatca.SubmissionResult

// CSIDResult is the outcome of a CSID request
type CSIDResult = zatca.CSIDResult

// CSRConfig is the subject of a compliance CSR
type CSRConfig = stamp.CSRConfig

// Store persists per-organization chain state
type Store = chain.Store

// Options configures an Engine
type Options struct {
	// Endpoints locates the regulator's API. Required for submissions.
	Endpoints Endpoints

	// PrivateKeyPEM signs invoice hashes. Required.
	PrivateKeyPEM []byte
	// PublicKeyPEM and CertSignature enable phase-2 QR payloads
	PublicKeyPEM  []byte
	CertSignature string

	// Store holds chain state; nil selects an in-memory store
	Store Store

	// MaxAttempts and RetryBackoff bound submission retries
	MaxAttempts  int
	RetryBackoff time.Duration

	// Logger receives structured engine logs; nil disables logging
	Logger *zap.Logger
}

// Engine is the high-level entry point: one instance serves any number of
// organizations and holds their chain state.
type Engine struct {
	pipeline *engine.Pipeline
	client   *zatca.Client
}

// NewEngine creates an engine with the given options
func NewEngine(opts Options) *Engine {
	store := opts.Store
	if store == nil {
		store = chain.NewMemoryStore()
	}

	var clientOpts []zatca.ClientOption
	var pipelineOpts []engine.PipelineOption
	if opts.Logger != nil {
		clientOpts = append(clientOpts, zatca.WithLogger(opts.Logger))
		pipelineOpts = append(pipelineOpts, engine.WithLogger(opts.Logger))
	}

	client := zatca.NewClient(&opts.Endpoints, clientOpts...)

	pipeline := engine.NewPipeline(
		chain.NewSequencer(store, opts.Logger),
		client,
		&engine.Config{
			PrivateKeyPEM: opts.PrivateKeyPEM,
			PublicKeyPEM:  opts.PublicKeyPEM,
			CertSignature: opts.CertSignature,
			MaxAttempts:   opts.MaxAttempts,
			RetryBackoff:  opts.RetryBackoff,
		},
		pipelineOpts...,
	)

	return &Engine{pipeline: pipeline, client: client}
}

// Clear submits a standard invoice for synchronous clearance (B2B)
func (e *Engine) Clear(ctx context.Context, orgID string, cred Credential, inv *Invoice) (*Result, error) {
	return e.pipeline.Issue(ctx, &engine.Request{
		OrgID:      orgID,
		Mode:       engine.ModeClearance,
		Credential: cred,
		Invoice:    inv,
	})
}

// Report submits a simplified invoice for asynchronous reporting (B2C)
func (e *Engine) Report(ctx context.Context, orgID string, cred Credential, inv *Invoice) (*Result, error) {
	return e.pipeline.Issue(ctx, &engine.Request{
		OrgID:      orgID,
		Mode:       engine.ModeReporting,
		Credential: cred,
		Invoice:    inv,
	})
}

// ValidateCompliance submits a test invoice against the compliance CSID
func (e *Engine) ValidateCompliance(ctx context.Context, orgID string, cred Credential, inv *Invoice) (*Result, error) {
	return e.pipeline.Issue(ctx, &engine.Request{
		OrgID:      orgID,
		Mode:       engine.ModeCompliance,
		Credential: cred,
		Invoice:    inv,
	})
}

// RequestComplianceCSID generates a CSR for the subject and requests the
// first-stage credential pair with the one-time code.
func (e *Engine) RequestComplianceCSID(ctx context.Context, cfg CSRConfig, privPEM []byte, otp string) (*CSIDResult, error) {
	csr, err := stamp.GenerateCSR(cfg, privPEM)
	if err != nil {
		return nil, err
	}
	return e.client.RequestComplianceCSID(ctx, csr, otp), nil
}

// RequestProductionCSID exchanges a compliance credential for a production one
func (e *Engine) RequestProductionCSID(ctx context.Context, compliance Credential, complianceRequestID string) *CSIDResult {
	return e.client.RequestProductionCSID(ctx, compliance, complianceRequestID)
}

// GenerateKeyPair creates a PEM EC keypair on the named curve; an empty name
// selects the default curve.
func GenerateKeyPair(curveName string) (privPEM, pubPEM []byte, err error) {
	return stamp.GenerateKeyPair(curveName)
}

// VerifyChain checks that serialized invoices, in order, form a valid chain
func VerifyChain(orgID string, documents [][]byte) error {
	return chain.VerifyChain(orgID, documents)
}

// InitialHash is the previous-invoice-hash seeding every new chain
func InitialHash() string {
	return stamp.InitialHash()
}
