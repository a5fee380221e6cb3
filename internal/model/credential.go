package model

import (
	"encoding/base64"
	"time"
)

// CredentialStage marks which lifecycle step issued a CSID pair
type CredentialStage string

const (
	// StageCompliance pairs are valid only for compliance-phase test invoices
	StageCompliance CredentialStage = "COMPLIANCE"
	// StageProduction pairs are valid for live clearance and reporting
	StageProduction CredentialStage = "PRODUCTION"
)

// Credential is a CSID pair issued by the regulator. It is immutable once
// issued; an expired pair must be reissued, never refreshed in place.
type Credential struct {
	RequestID string          `json:"request_id"`
	CSID      string          `json:"csid"`
	Secret    string          `json:"secret"`
	Stage     CredentialStage `json:"stage,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the pair is past its regulator-defined lifetime.
// A zero ExpiresAt means the expiry is unknown and the pair is trusted.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// BasicAuth returns the Authorization header value for the pair
func (c Credential) BasicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.CSID+":"+c.Secret))
}
