package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType distinguishes the two ZATCA document flavours
type InvoiceType string

const (
	// InvoiceTypeStandard is a full B2B invoice subject to clearance
	InvoiceTypeStandard InvoiceType = "STANDARD"
	// InvoiceTypeSimplified is a B2C invoice subject to reporting only
	InvoiceTypeSimplified InvoiceType = "SIMPLIFIED"
)

// VAT category codes per the ZATCA UBL profile
const (
	VATCategoryStandard  = "S"
	VATCategoryZeroRated = "Z"
)

// Party identifies a seller or buyer on an invoice
type Party struct {
	Name        string `json:"name"`
	VATNumber   string `json:"vat_number"`
	StreetName  string `json:"street_name,omitempty"`
	CityName    string `json:"city_name,omitempty"`
	PostalZone  string `json:"postal_zone,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// LineItem is a single invoice line
type LineItem struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	VATRate   decimal.Decimal `json:"vat_rate"` // percent, e.g. 15

	// Computed by Calculate
	LineExtension decimal.Decimal `json:"line_extension"`
	VATAmount     decimal.Decimal `json:"vat_amount"`
}

// Calculate fills the computed amounts: extension = quantity * unitPrice,
// VAT = extension * rate/100. Both rounded to two decimals (halalas).
func (li *LineItem) Calculate() {
	li.LineExtension = li.Quantity.Mul(li.UnitPrice).Round(2)
	li.VATAmount = li.LineExtension.Mul(li.VATRate).Div(decimal.NewFromInt(100)).Round(2)
}

// VATCategory maps the line's rate to a UBL tax category code.
// Zero-rated lines are "Z", everything else is standard "S".
func (li *LineItem) VATCategory() string {
	if li.VATRate.IsZero() {
		return VATCategoryZeroRated
	}
	return VATCategoryStandard
}

// Invoice is one invoice record in an organization's chain
type Invoice struct {
	ID        string      `json:"id"`
	UUID      string      `json:"uuid"`
	Type      InvoiceType `json:"type"`
	IssueTime time.Time   `json:"issue_time"`
	Currency  string      `json:"currency"`

	Seller Party `json:"seller"`
	Buyer  Party `json:"buyer,omitempty"`

	Items []LineItem `json:"items"`

	// Chain fields assigned by the sequencer
	ICV          int64  `json:"icv"`
	PreviousHash string `json:"previous_hash"`

	// Computed by CalculateTotals
	LineExtensionAmount decimal.Decimal `json:"line_extension_amount"`
	TaxExclusiveAmount  decimal.Decimal `json:"tax_exclusive_amount"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	TaxInclusiveAmount  decimal.Decimal `json:"tax_inclusive_amount"`
	PayableAmount       decimal.Decimal `json:"payable_amount"`
}

// CalculateTotals recomputes every line and rolls the amounts up
func (inv *Invoice) CalculateTotals() {
	lineExtension := decimal.Zero
	tax := decimal.Zero

	for i := range inv.Items {
		inv.Items[i].Calculate()
		lineExtension = lineExtension.Add(inv.Items[i].LineExtension)
		tax = tax.Add(inv.Items[i].VATAmount)
	}

	inv.LineExtensionAmount = lineExtension
	inv.TaxExclusiveAmount = lineExtension
	inv.TaxAmount = tax
	inv.TaxInclusiveAmount = lineExtension.Add(tax)
	inv.PayableAmount = inv.TaxInclusiveAmount
}
