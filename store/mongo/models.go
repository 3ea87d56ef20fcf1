package mongo

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/withdrawal"
)

// Amounts are stored as base-10 strings; BSON has no 256-bit integer.

// ==================== Contribution models ====================

type contributionModel struct {
	grove.BaseModel `grove:"table:custody_contributions"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	Epoch          int64     `grove:"epoch"           bson:"epoch"`
	Seq            int64     `grove:"seq"             bson:"seq"`
	Contributor    string    `grove:"contributor"     bson:"contributor"`
	Amount         string    `grove:"amount"          bson:"amount"`
	ReferenceValue string    `grove:"reference_value" bson:"reference_value"`
	PriceFeed      string    `grove:"price_feed"      bson:"price_feed"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

func toContributionModel(c *contribution.Contribution) *contributionModel {
	return &contributionModel{
		ID:             c.ID.String(),
		Epoch:          int64(c.Epoch),
		Seq:            int64(c.Seq),
		Contributor:    c.Contributor.Hex(),
		Amount:         bigString(c.Amount),
		ReferenceValue: bigString(c.ReferenceValue),
		PriceFeed:      c.PriceFeed,
		CreatedAt:      c.CreatedAt,
	}
}

func fromContributionModel(m *contributionModel) (*contribution.Contribution, error) {
	contributionID, err := id.ParseContributionID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(m.Amount)
	if err != nil {
		return nil, err
	}
	ref, err := parseBig(m.ReferenceValue)
	if err != nil {
		return nil, err
	}

	return &contribution.Contribution{
		Entity:         types.Entity{CreatedAt: m.CreatedAt},
		ID:             contributionID,
		Epoch:          uint64(m.Epoch),
		Seq:            uint64(m.Seq),
		Contributor:    common.HexToAddress(m.Contributor),
		Amount:         amount,
		ReferenceValue: ref,
		PriceFeed:      m.PriceFeed,
	}, nil
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:custody_withdrawals"`

	ID           string    `grove:"id,pk"        bson:"_id"`
	Epoch        int64     `grove:"epoch"        bson:"epoch"`
	Owner        string    `grove:"owner"        bson:"owner"`
	Amount       string    `grove:"amount"       bson:"amount"`
	Contributors int       `grove:"contributors" bson:"contributors"`
	Strategy     string    `grove:"strategy"     bson:"strategy"`
	CreatedAt    time.Time `grove:"created_at"   bson:"created_at"`
}

func toWithdrawalModel(w *withdrawal.Withdrawal) *withdrawalModel {
	return &withdrawalModel{
		ID:           w.ID.String(),
		Epoch:        int64(w.Epoch),
		Owner:        w.Owner.Hex(),
		Amount:       bigString(w.Amount),
		Contributors: w.Contributors,
		Strategy:     w.Strategy,
		CreatedAt:    w.CreatedAt,
	}
}

func fromWithdrawalModel(m *withdrawalModel) (*withdrawal.Withdrawal, error) {
	withdrawalID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(m.Amount)
	if err != nil {
		return nil, err
	}

	return &withdrawal.Withdrawal{
		Entity:       types.Entity{CreatedAt: m.CreatedAt},
		ID:           withdrawalID,
		Epoch:        uint64(m.Epoch),
		Owner:        common.HexToAddress(m.Owner),
		Amount:       amount,
		Contributors: m.Contributors,
		Strategy:     m.Strategy,
	}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("custody/mongo: invalid amount %q", s)
	}
	return v, nil
}
