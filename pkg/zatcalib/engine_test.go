package zatcalib_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/zatca-engine/pkg/zatcalib"
)

func newRegulator(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func testInvoice(id string) *zatcalib.Invoice {
	return &zatcalib.Invoice{
		ID:     id,
		Seller: zatcalib.Party{Name: "Fixzit Facility Co", VATNumber: "310122393500003"},
		Items: []zatcalib.LineItem{{
			Name:      "Maintenance visit",
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.NewFromInt(100),
			VATRate:   decimal.NewFromInt(15),
		}},
	}
}

func newTestEngine(t *testing.T, endpoints zatcalib.Endpoints) *zatcalib.Engine {
	t.Helper()
	priv, _, err := zatcalib.GenerateKeyPair("")
	require.NoError(t, err)

	return zatcalib.NewEngine(zatcalib.Options{
		Endpoints:     endpoints,
		PrivateKeyPEM: priv,
		RetryBackoff:  time.Millisecond,
	})
}

func TestEngine_Report(t *testing.T) {
	ts := newRegulator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic Y3NpZC10b2tlbjp0b3BzZWNyZXQ=", r.Header.Get("Authorization"))
		assert.Equal(t, "V2", r.Header.Get("Accept-Version"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.NotEmpty(t, payload["invoiceHash"])
		assert.NotEmpty(t, payload["uuid"])
		assert.NotEmpty(t, payload["invoice"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"reportingStatus":   "REPORTED",
			"validationResults": map[string]any{"status": "PASS"},
		})
	})

	eng := newTestEngine(t, zatcalib.Endpoints{ReportingAPIURL: ts.URL})
	cred := zatcalib.Credential{CSID: "csid-token", Secret: "topsecret"}

	result, err := eng.Report(context.Background(), "org-1", cred, testInvoice("INV-001"))
	require.NoError(t, err)

	assert.True(t, result.Submission.Success)
	assert.Equal(t, "REPORTED", result.Submission.ReportingStatus)
	assert.Equal(t, int64(1), result.Invoice.ICV)
	assert.Equal(t, zatcalib.InitialHash(), result.Invoice.PreviousHash)
	assert.NotEmpty(t, result.QRCode)
}

func TestEngine_ChainAcrossSubmissions(t *testing.T) {
	ts := newRegulator(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"reportingStatus": "REPORTED"})
	})

	eng := newTestEngine(t, zatcalib.Endpoints{ReportingAPIURL: ts.URL})
	cred := zatcalib.Credential{CSID: "csid-token", Secret: "topsecret"}
	ctx := context.Background()

	first, err := eng.Report(ctx, "org-1", cred, testInvoice("INV-001"))
	require.NoError(t, err)
	second, err := eng.Report(ctx, "org-1", cred, testInvoice("INV-002"))
	require.NoError(t, err)

	assert.Equal(t, int64(2), second.Invoice.ICV)
	assert.Equal(t, first.InvoiceHash, second.Invoice.PreviousHash)

	require.NoError(t, zatcalib.VerifyChain("org-1", [][]byte{
		[]byte(first.XML),
		[]byte(second.XML),
	}))
}

func TestEngine_ExpiredCredentialFailsWithoutRetry(t *testing.T) {
	calls := 0
	ts := newRegulator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	eng := newTestEngine(t, zatcalib.Endpoints{ReportingAPIURL: ts.URL})
	cred := zatcalib.Credential{
		CSID:      "csid-token",
		Secret:    "topsecret",
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	result, err := eng.Report(context.Background(), "org-1", cred, testInvoice("INV-001"))
	require.NoError(t, err)

	assert.False(t, result.Submission.Success)
	require.Len(t, result.Submission.Errors, 1)
	assert.Equal(t, "CREDENTIAL_EXPIRED", result.Submission.Errors[0].Code)
	assert.Equal(t, 0, calls, "expired credential must not reach the regulator")
}

func TestEngine_RequestComplianceCSID(t *testing.T) {
	ts := newRegulator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "123456", r.Header.Get("OTP"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["csr"])

		json.NewEncoder(w).Encode(map[string]any{
			"requestID":           1234567890,
			"binarySecurityToken": "issued-token",
			"secret":              "issued-secret",
		})
	})

	eng := newTestEngine(t, zatcalib.Endpoints{ComplianceAPIURL: ts.URL})
	priv, _, err := zatcalib.GenerateKeyPair("")
	require.NoError(t, err)

	result, err := eng.RequestComplianceCSID(context.Background(), zatcalib.CSRConfig{
		CommonName:       "TST-886431145-399999999900003",
		SerialNumber:     "1-TST|2-TST|3-ed22f1d8",
		OrganizationName: "Fixzit Facility Co",
		CountryName:      "SA",
		InvoiceType:      "1100",
		Location:         "RRRD2929",
		Industry:         "Facility Management",
	}, priv, "123456")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "1234567890", result.Credential.RequestID)
	assert.Equal(t, "issued-token", result.Credential.CSID)
	assert.Equal(t, zatcalib.StageCompliance, result.Credential.Stage)
}

func TestEngine_RequestComplianceCSID_InvalidSubject(t *testing.T) {
	eng := newTestEngine(t, zatcalib.Endpoints{})
	priv, _, err := zatcalib.GenerateKeyPair("")
	require.NoError(t, err)

	_, err = eng.RequestComplianceCSID(context.Background(), zatcalib.CSRConfig{
		CommonName: "TST-886431145-399999999900003",
	}, priv, "123456")
	require.Error(t, err)

	var csrErr *zatcalib.CSRError
	require.ErrorAs(t, err, &csrErr)
}
