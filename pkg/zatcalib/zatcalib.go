// Package zatcalib provides a public API for the ZATCA e-invoicing
// compliance engine.
//
// This package exposes the core types for preparing, signing and submitting
// e-invoices to the Saudi tax authority, and for managing the CSID
// credential lifecycle.
//
// Example usage:
//
//	eng := zatcalib.NewEngine(zatcalib.Options{
//	    Endpoints:     endpoints,
//	    PrivateKeyPEM: key,
//	})
//	result, err := eng.Report(ctx, "org-1", cred, invoice)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.QRCode)
package zatcalib

import "github.com/rezonia/zatca-engine/internal/model"

// Re-export core types for public API
type (
	Invoice         = model.Invoice
	LineItem        = model.LineItem
	Party           = model.Party
	Credential      = model.Credential
	InvoiceType     = model.InvoiceType
	CredentialStage = model.CredentialStage
)

// Re-export invoice types
const (
	InvoiceTypeStandard   = model.InvoiceTypeStandard
	InvoiceTypeSimplified = model.InvoiceTypeSimplified
)

// Re-export VAT category codes
const (
	VATCategoryStandard  = model.VATCategoryStandard
	VATCategoryZeroRated = model.VATCategoryZeroRated
)

// Re-export credential stages
const (
	StageCompliance = model.StageCompliance
	StageProduction = model.StageProduction
)

// Re-export error types
type (
	ChainError = model.ChainError
	CSRError   = model.CSRError
	BuildError = model.BuildError
)
