package stamp

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/rezonia/zatca-engine/internal/model"
)

// Subject attribute OIDs carrying the ZATCA-specific CSR fields
var (
	oidTitle             = asn1.ObjectIdentifier{2, 5, 4, 12} // invoice type
	oidBusinessCategory  = asn1.ObjectIdentifier{2, 5, 4, 15} // industry
	oidRegisteredAddress = asn1.ObjectIdentifier{2, 5, 4, 26} // location
)

// CSRConfig is the subject of a compliance CSR. Every field except
// OrganizationUnitName is mandatory.
type CSRConfig struct {
	CommonName           string `json:"common_name" mapstructure:"common_name"`
	SerialNumber         string `json:"serial_number" mapstructure:"serial_number"`
	OrganizationName     string `json:"organization_name" mapstructure:"organization_name"`
	OrganizationUnitName string `json:"organization_unit_name,omitempty" mapstructure:"organization_unit_name"`
	CountryName          string `json:"country_name" mapstructure:"country_name"`
	InvoiceType          string `json:"invoice_type" mapstructure:"invoice_type"`
	Location             string `json:"location" mapstructure:"location"`
	Industry             string `json:"industry" mapstructure:"industry"`
}

// Validate fails fast on any missing required field
func (c CSRConfig) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"commonName", c.CommonName},
		{"serialNumber", c.SerialNumber},
		{"organizationName", c.OrganizationName},
		{"countryName", c.CountryName},
		{"invoiceType", c.InvoiceType},
		{"location", c.Location},
		{"industry", c.Industry},
	}
	for _, r := range required {
		if r.value == "" {
			return model.NewCSRError(r.field, "is required")
		}
	}
	return nil
}

// GenerateCSR builds a certificate signing request for the configured
// subject, signed with the given PEM private key, and returns the PEM CSR
// base64-encoded as the regulator's onboarding endpoint expects.
//
// The subject construction is deterministic for identical input; only the
// ECDSA signature bytes differ between invocations.
func GenerateCSR(cfg CSRConfig, privPEM []byte) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	key, err := ParsePrivateKey(privPEM)
	if err != nil {
		return "", err
	}

	subject := pkix.Name{
		CommonName:   cfg.CommonName,
		SerialNumber: cfg.SerialNumber,
		Organization: []string{cfg.OrganizationName},
		Country:      []string{cfg.CountryName},
		ExtraNames: []pkix.AttributeTypeAndValue{
			{Type: oidTitle, Value: cfg.InvoiceType},
			{Type: oidRegisteredAddress, Value: cfg.Location},
			{Type: oidBusinessCategory, Value: cfg.Industry},
		},
	}
	if cfg.OrganizationUnitName != "" {
		subject.OrganizationalUnit = []string{cfg.OrganizationUnitName}
	}

	template := x509.CertificateRequest{
		Subject:            subject,
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return "", fmt.Errorf("stamp: create csr: %w", err)
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypeCSR, Bytes: der})
	return base64.StdEncoding.EncodeToString(csrPEM), nil
}
