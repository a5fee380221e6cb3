package chain

import (
	"github.com/rezonia/zatca-engine/internal/model"
	"github.com/rezonia/zatca-engine/internal/stamp"
	"github.com/rezonia/zatca-engine/internal/ubl"
)

// VerifyChain checks that a sequence of serialized invoices, ordered as
// given, forms a valid linear chain: ICVs increase by exactly one and each
// document's PIH equals the hash of its predecessor. The first document
// must carry the initial hash. This mirrors the regulator's own linear
// verification and is what the verify tooling runs over an export.
func VerifyChain(orgID string, documents [][]byte) error {
	prevHash := stamp.InitialHash()
	var prevICV int64

	for i, doc := range documents {
		info, err := ubl.Inspect(doc)
		if err != nil {
			return model.NewChainError(orgID, prevICV+1, "unreadable document", err)
		}

		if info.ICV != prevICV+1 {
			return model.NewChainError(orgID, info.ICV, "counter value out of sequence", nil)
		}
		if info.PreviousHash != prevHash {
			return model.NewChainError(orgID, info.ICV, "previous hash mismatch", nil)
		}

		prevHash = stamp.Hash(documents[i])
		prevICV = info.ICV
	}
	return nil
}
