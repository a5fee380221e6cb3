// Package ubl renders ZATCA-profile UBL invoice documents. Rendering is a
// pure function of the invoice record: no I/O, no hidden state, safe for
// concurrent use.
//
// The XML is written by hand rather than through a marshaller because the
// escaping of user-originated text is part of the external contract and the
// regulator verifies the serialized bytes.
package ubl

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rezonia/zatca-engine/internal/model"
)

// UBL namespaces for the invoice document
const (
	nsInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsCAC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsCBC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
)

// InvoiceTypeCode name attribute values: standard (B2B) vs simplified (B2C)
const (
	subtypeStandard   = "0100000"
	subtypeSimplified = "0200000"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape sanitizes untrusted text before interpolation into XML
func Escape(s string) string {
	return xmlEscaper.Replace(s)
}

// FormatAmount renders a monetary amount with exactly two decimal places
func FormatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// BuildInvoice renders a standard multi-party invoice
func BuildInvoice(inv *model.Invoice) (string, error) {
	if inv.Buyer.Name == "" {
		return "", model.NewBuildError("buyer.name", "required for standard invoices", nil)
	}
	return build(inv, subtypeStandard, true)
}

// BuildSimplifiedInvoice renders a simplified (B2C) invoice; the buyer
// party is optional and omitted from the document when absent.
func BuildSimplifiedInvoice(inv *model.Invoice) (string, error) {
	return build(inv, subtypeSimplified, inv.Buyer.Name != "")
}

func build(inv *model.Invoice, subtype string, withBuyer bool) (string, error) {
	if err := validate(inv); err != nil {
		return "", err
	}

	inv.CalculateTotals()

	currency := inv.Currency
	if currency == "" {
		currency = "SAR"
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<Invoice xmlns=%q xmlns:cac=%q xmlns:cbc=%q>`+"\n", nsInvoice, nsCAC, nsCBC)

	fmt.Fprintf(&b, "  <cbc:ProfileID>reporting:1.0</cbc:ProfileID>\n")
	fmt.Fprintf(&b, "  <cbc:ID>%s</cbc:ID>\n", Escape(inv.ID))
	fmt.Fprintf(&b, "  <cbc:UUID>%s</cbc:UUID>\n", Escape(inv.UUID))
	fmt.Fprintf(&b, "  <cbc:IssueDate>%s</cbc:IssueDate>\n", inv.IssueTime.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "  <cbc:IssueTime>%s</cbc:IssueTime>\n", inv.IssueTime.UTC().Format("15:04:05"))
	fmt.Fprintf(&b, "  <cbc:InvoiceTypeCode name=%q>388</cbc:InvoiceTypeCode>\n", subtype)
	fmt.Fprintf(&b, "  <cbc:DocumentCurrencyCode>%s</cbc:DocumentCurrencyCode>\n", Escape(currency))

	// Chain fields travel as additional document references
	b.WriteString("  <cac:AdditionalDocumentReference>\n")
	b.WriteString("    <cbc:ID>ICV</cbc:ID>\n")
	fmt.Fprintf(&b, "    <cbc:UUID>%d</cbc:UUID>\n", inv.ICV)
	b.WriteString("  </cac:AdditionalDocumentReference>\n")
	b.WriteString("  <cac:AdditionalDocumentReference>\n")
	b.WriteString("    <cbc:ID>PIH</cbc:ID>\n")
	b.WriteString("    <cac:Attachment>\n")
	fmt.Fprintf(&b, "      <cbc:EmbeddedDocumentBinaryObject mimeCode=\"text/plain\">%s</cbc:EmbeddedDocumentBinaryObject>\n", Escape(inv.PreviousHash))
	b.WriteString("    </cac:Attachment>\n")
	b.WriteString("  </cac:AdditionalDocumentReference>\n")

	writeParty(&b, "AccountingSupplierParty", inv.Seller)
	if withBuyer {
		writeParty(&b, "AccountingCustomerParty", inv.Buyer)
	}

	// Document-level tax total
	b.WriteString("  <cac:TaxTotal>\n")
	fmt.Fprintf(&b, "    <cbc:TaxAmount currencyID=%q>%s</cbc:TaxAmount>\n", currency, FormatAmount(inv.TaxAmount))
	b.WriteString("  </cac:TaxTotal>\n")

	b.WriteString("  <cac:LegalMonetaryTotal>\n")
	fmt.Fprintf(&b, "    <cbc:LineExtensionAmount currencyID=%q>%s</cbc:LineExtensionAmount>\n", currency, FormatAmount(inv.LineExtensionAmount))
	fmt.Fprintf(&b, "    <cbc:TaxExclusiveAmount currencyID=%q>%s</cbc:TaxExclusiveAmount>\n", currency, FormatAmount(inv.TaxExclusiveAmount))
	fmt.Fprintf(&b, "    <cbc:TaxInclusiveAmount currencyID=%q>%s</cbc:TaxInclusiveAmount>\n", currency, FormatAmount(inv.TaxInclusiveAmount))
	fmt.Fprintf(&b, "    <cbc:PayableAmount currencyID=%q>%s</cbc:PayableAmount>\n", currency, FormatAmount(inv.PayableAmount))
	b.WriteString("  </cac:LegalMonetaryTotal>\n")

	for i := range inv.Items {
		writeLine(&b, i+1, &inv.Items[i], currency)
	}

	b.WriteString("</Invoice>\n")
	return b.String(), nil
}

func validate(inv *model.Invoice) error {
	if inv.Seller.Name == "" {
		return model.NewBuildError("seller.name", "is required", nil)
	}
	if inv.Seller.VATNumber == "" {
		return model.NewBuildError("seller.vat_number", "is required", nil)
	}
	if len(inv.Items) == 0 {
		return model.NewBuildError("items", "at least one line item is required", nil)
	}
	if inv.ICV <= 0 {
		return model.NewBuildError("icv", "must be a positive counter value", nil)
	}
	if inv.PreviousHash == "" {
		return model.NewBuildError("previous_hash", "is required", nil)
	}
	return nil
}

func writeParty(b *strings.Builder, element string, p model.Party) {
	fmt.Fprintf(b, "  <cac:%s>\n", element)
	b.WriteString("    <cac:Party>\n")
	if p.StreetName != "" || p.CityName != "" || p.CountryCode != "" {
		b.WriteString("      <cac:PostalAddress>\n")
		if p.StreetName != "" {
			fmt.Fprintf(b, "        <cbc:StreetName>%s</cbc:StreetName>\n", Escape(p.StreetName))
		}
		if p.CityName != "" {
			fmt.Fprintf(b, "        <cbc:CityName>%s</cbc:CityName>\n", Escape(p.CityName))
		}
		if p.PostalZone != "" {
			fmt.Fprintf(b, "        <cbc:PostalZone>%s</cbc:PostalZone>\n", Escape(p.PostalZone))
		}
		if p.CountryCode != "" {
			b.WriteString("        <cac:Country>\n")
			fmt.Fprintf(b, "          <cbc:IdentificationCode>%s</cbc:IdentificationCode>\n", Escape(p.CountryCode))
			b.WriteString("        </cac:Country>\n")
		}
		b.WriteString("      </cac:PostalAddress>\n")
	}
	if p.VATNumber != "" {
		b.WriteString("      <cac:PartyTaxScheme>\n")
		fmt.Fprintf(b, "        <cbc:CompanyID>%s</cbc:CompanyID>\n", Escape(p.VATNumber))
		b.WriteString("        <cac:TaxScheme>\n")
		b.WriteString("          <cbc:ID>VAT</cbc:ID>\n")
		b.WriteString("        </cac:TaxScheme>\n")
		b.WriteString("      </cac:PartyTaxScheme>\n")
	}
	b.WriteString("      <cac:PartyLegalEntity>\n")
	fmt.Fprintf(b, "        <cbc:RegistrationName>%s</cbc:RegistrationName>\n", Escape(p.Name))
	b.WriteString("      </cac:PartyLegalEntity>\n")
	b.WriteString("    </cac:Party>\n")
	fmt.Fprintf(b, "  </cac:%s>\n", element)
}

func writeLine(b *strings.Builder, number int, li *model.LineItem, currency string) {
	b.WriteString("  <cac:InvoiceLine>\n")
	fmt.Fprintf(b, "    <cbc:ID>%d</cbc:ID>\n", number)
	fmt.Fprintf(b, "    <cbc:InvoicedQuantity unitCode=\"PCE\">%s</cbc:InvoicedQuantity>\n", li.Quantity.String())
	fmt.Fprintf(b, "    <cbc:LineExtensionAmount currencyID=%q>%s</cbc:LineExtensionAmount>\n", currency, FormatAmount(li.LineExtension))
	b.WriteString("    <cac:TaxTotal>\n")
	fmt.Fprintf(b, "      <cbc:TaxAmount currencyID=%q>%s</cbc:TaxAmount>\n", currency, FormatAmount(li.VATAmount))
	fmt.Fprintf(b, "      <cbc:RoundingAmount currencyID=%q>%s</cbc:RoundingAmount>\n", currency, FormatAmount(li.LineExtension.Add(li.VATAmount)))
	b.WriteString("    </cac:TaxTotal>\n")
	b.WriteString("    <cac:Item>\n")
	fmt.Fprintf(b, "      <cbc:Name>%s</cbc:Name>\n", Escape(li.Name))
	b.WriteString("      <cac:ClassifiedTaxCategory>\n")
	fmt.Fprintf(b, "        <cbc:ID>%s</cbc:ID>\n", li.VATCategory())
	fmt.Fprintf(b, "        <cbc:Percent>%s</cbc:Percent>\n", FormatAmount(li.VATRate))
	b.WriteString("        <cac:TaxScheme>\n")
	b.WriteString("          <cbc:ID>VAT</cbc:ID>\n")
	b.WriteString("        </cac:TaxScheme>\n")
	b.WriteString("      </cac:ClassifiedTaxCategory>\n")
	b.WriteString("    </cac:Item>\n")
	b.WriteString("    <cac:Price>\n")
	fmt.Fprintf(b, "      <cbc:PriceAmount currencyID=%q>%s</cbc:PriceAmount>\n", currency, FormatAmount(li.UnitPrice))
	b.WriteString("    </cac:Price>\n")
	b.WriteString("  </cac:InvoiceLine>\n")
}
