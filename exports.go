package custody

import "github.com/xraph/custody/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export amount constructors
var (
	ETH          = types.ETH
	USD          = types.USD
	Ether        = types.Ether
	Dollars      = types.Dollars
	ParseEther   = types.ParseEther
	ParseDollars = types.ParseDollars
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
