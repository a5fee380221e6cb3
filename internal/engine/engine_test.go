package engine_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/zatca-engine/internal/chain"
	"github.com/rezonia/zatca-engine/internal/engine"
	"github.com/rezonia/zatca-engine/internal/model"
	"github.com/rezonia/zatca-engine/internal/stamp"
	"github.com/rezonia/zatca-engine/internal/tlv"
	"github.com/rezonia/zatca-engine/internal/ubl"
	"github.com/rezonia/zatca-engine/internal/zatca"
)

// fakeSubmitter records every payload it receives and replays scripted
// results, one per call.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []zatca.SubmissionPayload
	results  []*zatca.SubmissionResult
}

func (f *fakeSubmitter) next(payload zatca.SubmissionPayload) *zatca.SubmissionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if len(f.results) == 0 {
		return &zatca.SubmissionResult{Success: true, Status: zatca.StatusPass}
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}

func (f *fakeSubmitter) SubmitForClearance(_ context.Context, _ model.Credential, p zatca.SubmissionPayload) *zatca.SubmissionResult {
	return f.next(p)
}

func (f *fakeSubmitter) SubmitForReporting(_ context.Context, _ model.Credential, p zatca.SubmissionPayload) *zatca.SubmissionResult {
	return f.next(p)
}

func (f *fakeSubmitter) SubmitComplianceInvoice(_ context.Context, _ model.Credential, p zatca.SubmissionPayload) *zatca.SubmissionResult {
	return f.next(p)
}

func testInvoice(id string) *model.Invoice {
	return &model.Invoice{
		ID:     id,
		Seller: model.Party{Name: "Fixzit Facility Co", VATNumber: "310122393500003"},
		Buyer:  model.Party{Name: "Rezonia Trading Est", VATNumber: "311111111100003"},
		Items: []model.LineItem{{
			Name:      "Maintenance visit",
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.NewFromInt(100),
			VATRate:   decimal.NewFromInt(15),
		}},
	}
}

func newTestPipeline(t *testing.T, client engine.Submitter, cfg *engine.Config) *engine.Pipeline {
	t.Helper()
	if cfg == nil {
		priv, _, err := stamp.GenerateKeyPair("")
		require.NoError(t, err)
		cfg = &engine.Config{PrivateKeyPEM: priv}
	}
	cfg.RetryBackoff = time.Millisecond
	seq := chain.NewSequencer(chain.NewMemoryStore(), nil)
	return engine.NewPipeline(seq, client, cfg)
}

func TestPipeline_IssueReporting(t *testing.T) {
	sub := &fakeSubmitter{}
	p := newTestPipeline(t, sub, nil)

	result, err := p.Issue(context.Background(), &engine.Request{
		OrgID:   "org-1",
		Mode:    engine.ModeReporting,
		Invoice: testInvoice("INV-001"),
	})
	require.NoError(t, err)

	assert.True(t, result.Submission.Success)
	assert.Equal(t, 1, result.Attempts)

	inv := result.Invoice
	assert.NotEmpty(t, inv.UUID)
	assert.Equal(t, int64(1), inv.ICV)
	assert.Equal(t, stamp.InitialHash(), inv.PreviousHash)
	assert.Equal(t, model.InvoiceTypeSimplified, inv.Type)

	// The payload carries the rendered XML and its hash
	raw, err := base64.StdEncoding.DecodeString(result.Payload.Invoice)
	require.NoError(t, err)
	assert.Equal(t, result.XML, string(raw))
	assert.Equal(t, stamp.Hash(raw), result.Payload.InvoiceHash)
	assert.Equal(t, inv.UUID, result.Payload.UUID)

	// 2 x 100 at 15% = 200.00 + 30.00
	assert.Contains(t, result.XML, ">200.00</cbc:TaxExclusiveAmount>")
	assert.Contains(t, result.XML, ">230.00</cbc:TaxInclusiveAmount>")
}

func TestPipeline_BasicQRWithoutCertMaterial(t *testing.T) {
	p := newTestPipeline(t, &fakeSubmitter{}, nil)

	result, err := p.Issue(context.Background(), &engine.Request{
		OrgID:   "org-1",
		Mode:    engine.ModeReporting,
		Invoice: testInvoice("INV-001"),
	})
	require.NoError(t, err)

	records, err := tlv.DecodeSequence(result.QRCode)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "Fixzit Facility Co", string(records[0].Value))
	assert.Equal(t, "230.00", string(records[3].Value))
	assert.Equal(t, "30.00", string(records[4].Value))
}

func TestPipeline_Phase2QRWithCertMaterial(t *testing.T) {
	priv, pub, err := stamp.GenerateKeyPair("")
	require.NoError(t, err)

	certSig := base64.StdEncoding.EncodeToString([]byte("issuer-signature"))
	p := newTestPipeline(t, &fakeSubmitter{}, &engine.Config{
		PrivateKeyPEM: priv,
		PublicKeyPEM:  pub,
		CertSignature: certSig,
	})

	result, err := p.Issue(context.Background(), &engine.Request{
		OrgID:   "org-1",
		Mode:    engine.ModeReporting,
		Invoice: testInvoice("INV-001"),
	})
	require.NoError(t, err)

	records, err := tlv.DecodeSequence(result.QRCode)
	require.NoError(t, err)
	require.Len(t, records, 9)

	// Tag 6 carries the raw hash bytes, tag 8 the PEM public key
	assert.Equal(t, byte(stamp.TagInvoiceHash), records[5].Tag)
	assert.Len(t, records[5].Value, 32)
	assert.Equal(t, string(pub), string(records[7].Value))
	assert.Equal(t, "issuer-signature", string(records[8].Value))

	// The signature in the QR verifies against the invoice hash
	ok, err := stamp.Verify([]byte(result.InvoiceHash), result.Signature, pub)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPipeline_ClearanceQRComesFromRegulator(t *testing.T) {
	sub := &fakeSubmitter{results: []*zatca.SubmissionResult{{
		Success: true,
		Status:  zatca.StatusPass,
		QRCode:  "regulator-issued-qr",
	}}}
	p := newTestPipeline(t, sub, nil)

	result, err := p.Issue(context.Background(), &engine.Request{
		OrgID:   "org-1",
		Mode:    engine.ModeClearance,
		Invoice: testInvoice("INV-001"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceTypeStandard, result.Invoice.Type)
	assert.Equal(t, "regulator-issued-qr", result.QRCode)
}

func TestPipeline_RetriesTransportFailuresWithSamePayload(t *testing.T) {
	networkFailure := &zatca.SubmissionResult{
		Status: zatca.StatusError,
		Errors: []zatca.Message{{Type: zatca.TypeNetwork, Code: zatca.CodeFetchError, Message: "connection refused"}},
	}
	sub := &fakeSubmitter{results: []*zatca.SubmissionResult{
		networkFailure,
		networkFailure,
		{Success: true, Status: zatca.StatusPass},
	}}
	p := newTestPipeline(t, sub, nil)

	result, err := p.Issue(context.Background(), &engine.Request{
		OrgID:   "org-1",
		Mode:    engine.ModeReporting,
		Invoice: testInvoice("INV-001"),
	})
	require.NoError(t, err)

	assert.True(t, result.Submission.Success)
	assert.Equal(t, 3, result.Attempts)

	// Every attempt sent byte-identical payloads
	require.Len(t, sub.payloads, 3)
	assert.Equal(t, sub.payloads[0], sub.payloads[1])
	assert.Equal(t, sub.payloads[0], sub.payloads[2])
}

func TestPipeline_DoesNotRetryValidationErrors(t *testing.T) {
	sub := &fakeSubmitter{results: []*zatca.SubmissionResult{{
		Status: zatca.StatusError,
		Errors: []zatca.Message{{Type: zatca.TypeError, Code: "BR-KSA-01", Message: "invalid invoice"}},
	}}}
	p := newTestPipeline(t, sub, nil)

	result, err := p.Issue(context.Background(), &engine.Request{
		OrgID:   "org-1",
		Mode:    engine.ModeReporting,
		Invoice: testInvoice("INV-001"),
	})
	require.NoError(t, err)

	assert.False(t, result.Submission.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Len(t, sub.payloads, 1)
}

func TestPipeline_FailedSubmissionStillOccupiesSlot(t *testing.T) {
	sub := &fakeSubmitter{results: []*zatca.SubmissionResult{
		{Status: zatca.StatusError, Errors: []zatca.Message{{Type: zatca.TypeError, Message: "rejected"}}},
		{Success: true, Status: zatca.StatusPass},
	}}
	p := newTestPipeline(t, sub, nil)
	ctx := context.Background()

	first, err := p.Issue(ctx, &engine.Request{OrgID: "org-1", Mode: engine.ModeReporting, Invoice: testInvoice("INV-001")})
	require.NoError(t, err)
	require.False(t, first.Submission.Success)

	// The rejected invoice keeps ICV 1; the next one links to its hash
	second, err := p.Issue(ctx, &engine.Request{OrgID: "org-1", Mode: engine.ModeReporting, Invoice: testInvoice("INV-002")})
	require.NoError(t, err)

	assert.Equal(t, int64(2), second.Invoice.ICV)
	assert.Equal(t, first.InvoiceHash, second.Invoice.PreviousHash)
}

func TestPipeline_BuildFailureReleasesSlot(t *testing.T) {
	p := newTestPipeline(t, &fakeSubmitter{}, nil)
	ctx := context.Background()

	broken := testInvoice("INV-BAD")
	broken.Items = nil

	_, err := p.Issue(ctx, &engine.Request{OrgID: "org-1", Mode: engine.ModeReporting, Invoice: broken})
	require.Error(t, err)

	var buildErr *model.BuildError
	require.ErrorAs(t, err, &buildErr)

	// The failed build did not consume ICV 1
	result, err := p.Issue(ctx, &engine.Request{OrgID: "org-1", Mode: engine.ModeReporting, Invoice: testInvoice("INV-001")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Invoice.ICV)
}

func TestPipeline_ConcurrentIssuanceFormsOneChain(t *testing.T) {
	p := newTestPipeline(t, &fakeSubmitter{}, nil)
	ctx := context.Background()

	const n = 20
	var (
		mu      sync.Mutex
		results = make([]*engine.Result, 0, n)
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := p.Issue(ctx, &engine.Request{
				OrgID:   "org-1",
				Mode:    engine.ModeReporting,
				Invoice: testInvoice(fmt.Sprintf("INV-%03d", i)),
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	require.Len(t, results, n)

	byICV := make(map[int64]*engine.Result, n)
	for _, r := range results {
		_, dup := byICV[r.Invoice.ICV]
		require.False(t, dup, "icv %d issued twice", r.Invoice.ICV)
		byICV[r.Invoice.ICV] = r
	}

	require.Equal(t, stamp.InitialHash(), byICV[1].Invoice.PreviousHash)
	for icv := int64(2); icv <= n; icv++ {
		assert.Equal(t, byICV[icv-1].InvoiceHash, byICV[icv].Invoice.PreviousHash)
	}

	// Documents replay as a verifiable chain
	docs := make([][]byte, n)
	for icv := int64(1); icv <= n; icv++ {
		docs[icv-1] = []byte(byICV[icv].XML)
	}
	require.NoError(t, chain.VerifyChain("org-1", docs))
}

func TestPipeline_InspectRoundTrip(t *testing.T) {
	p := newTestPipeline(t, &fakeSubmitter{}, nil)

	result, err := p.Issue(context.Background(), &engine.Request{
		OrgID:   "org-1",
		Mode:    engine.ModeClearance,
		Invoice: testInvoice("INV-001"),
	})
	require.NoError(t, err)

	info, err := ubl.Inspect([]byte(result.XML))
	require.NoError(t, err)
	assert.Equal(t, "INV-001", info.ID)
	assert.Equal(t, result.Invoice.UUID, info.UUID)
	assert.Equal(t, int64(1), info.ICV)
	assert.Equal(t, stamp.InitialHash(), info.PreviousHash)
}
