package stamp

import (
	"encoding/base64"
	"fmt"

	"github.com/rezonia/zatca-engine/internal/tlv"
)

// QR payload tags. The order 1..9 is part of the external contract.
const (
	TagSellerName    byte = 1
	TagVATNumber     byte = 2
	TagTimestamp     byte = 3
	TagInvoiceTotal  byte = 4
	TagVATTotal      byte = 5
	TagInvoiceHash   byte = 6
	TagSignature     byte = 7
	TagPublicKey     byte = 8
	TagCertSignature byte = 9
)

// QRData carries the five basic (phase-1) QR fields as display strings
type QRData struct {
	SellerName string
	VATNumber  string
	Timestamp  string
	Total      string
	VATTotal   string
}

// Phase2Data extends QRData with the cryptographic stamp fields.
// InvoiceHash, Signature and CertSignature are base64 and are embedded as
// raw bytes; PublicKey is embedded as UTF-8 text.
type Phase2Data struct {
	QRData
	InvoiceHash   string
	Signature     string
	PublicKey     string
	CertSignature string
}

// BasicQR assembles the phase-1 QR payload, tags 1..5
func BasicQR(d QRData) (string, error) {
	return tlv.EncodeSequence([]tlv.Record{
		{Tag: TagSellerName, Value: []byte(d.SellerName)},
		{Tag: TagVATNumber, Value: []byte(d.VATNumber)},
		{Tag: TagTimestamp, Value: []byte(d.Timestamp)},
		{Tag: TagInvoiceTotal, Value: []byte(d.Total)},
		{Tag: TagVATTotal, Value: []byte(d.VATTotal)},
	})
}

// Phase2QR assembles the extended QR payload, tags 1..9 in fixed order
func Phase2QR(d Phase2Data) (string, error) {
	hash, err := base64.StdEncoding.DecodeString(d.InvoiceHash)
	if err != nil {
		return "", fmt.Errorf("stamp: invoice hash is not base64: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(d.Signature)
	if err != nil {
		return "", fmt.Errorf("stamp: signature is not base64: %w", err)
	}
	certSig, err := base64.StdEncoding.DecodeString(d.CertSignature)
	if err != nil {
		return "", fmt.Errorf("stamp: certificate signature is not base64: %w", err)
	}

	return tlv.EncodeSequence([]tlv.Record{
		{Tag: TagSellerName, Value: []byte(d.SellerName)},
		{Tag: TagVATNumber, Value: []byte(d.VATNumber)},
		{Tag: TagTimestamp, Value: []byte(d.Timestamp)},
		{Tag: TagInvoiceTotal, Value: []byte(d.Total)},
		{Tag: TagVATTotal, Value: []byte(d.VATTotal)},
		{Tag: TagInvoiceHash, Value: hash},
		{Tag: TagSignature, Value: sig},
		{Tag: TagPublicKey, Value: []byte(d.PublicKey)},
		{Tag: TagCertSignature, Value: certSig},
	})
}
