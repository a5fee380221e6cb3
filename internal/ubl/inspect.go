package ubl

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// DocumentInfo is the chain-relevant content of a rendered or cleared
// invoice document.
type DocumentInfo struct {
	ID           string
	UUID         string
	ICV          int64
	PreviousHash string
}

// Inspect parses an invoice document and extracts its identifiers and chain
// fields. It works on locally rendered XML and on the cleared invoice body
// the regulator returns.
func Inspect(data []byte) (*DocumentInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("ubl: parse invoice: %w", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "Invoice" {
		return nil, fmt.Errorf("ubl: document root is not an Invoice")
	}

	info := &DocumentInfo{}
	if el := root.FindElement("./ID"); el != nil {
		info.ID = el.Text()
	}
	if el := root.FindElement("./UUID"); el != nil {
		info.UUID = el.Text()
	}

	for _, ref := range root.FindElements("./AdditionalDocumentReference") {
		idEl := ref.FindElement("./ID")
		if idEl == nil {
			continue
		}
		switch idEl.Text() {
		case "ICV":
			uuidEl := ref.FindElement("./UUID")
			if uuidEl == nil {
				return nil, fmt.Errorf("ubl: ICV reference without a counter value")
			}
			icv, err := strconv.ParseInt(uuidEl.Text(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("ubl: ICV is not an integer: %w", err)
			}
			info.ICV = icv
		case "PIH":
			pihEl := ref.FindElement("./Attachment/EmbeddedDocumentBinaryObject")
			if pihEl == nil {
				return nil, fmt.Errorf("ubl: PIH reference without an embedded digest")
			}
			info.PreviousHash = pihEl.Text()
		}
	}

	if info.ICV == 0 {
		return nil, fmt.Errorf("ubl: document carries no ICV reference")
	}
	if info.PreviousHash == "" {
		return nil, fmt.Errorf("ubl: document carries no PIH reference")
	}
	return info, nil
}
