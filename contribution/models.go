// Package contribution defines journaled funding records.
//
// Every accepted fund is appended to the journal under the current epoch.
// An epoch ends when the owner withdraws; on restart the contributions of
// the open epoch are replayed into the in-memory ledger.
package contribution

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Contribution is one accepted fund call.
type Contribution struct {
	types.Entity
	ID          id.ContributionID `json:"id"`
	Epoch       uint64            `json:"epoch"`
	Seq         uint64            `json:"seq"`
	Contributor common.Address    `json:"contributor"`
	Amount      *big.Int          `json:"amount"`
	// ReferenceValue is the converted USD value (18 decimals) at funding time.
	ReferenceValue *big.Int `json:"reference_value"`
	PriceFeed      string   `json:"price_feed"`
}
