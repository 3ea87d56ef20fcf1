// Package withdrawal defines owner withdrawal receipts.
package withdrawal

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Withdrawal records a drain of the ledger to the owner. Its Epoch is the
// journal epoch it closes. The receipt ID doubles as the transfer
// reference handed to the payout rail.
type Withdrawal struct {
	types.Entity
	ID           id.WithdrawalID `json:"id"`
	Epoch        uint64          `json:"epoch"`
	Owner        common.Address  `json:"owner"`
	Amount       *big.Int        `json:"amount"`
	Contributors int             `json:"contributors"`
	Strategy     string          `json:"strategy"`
}
