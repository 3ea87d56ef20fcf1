// Package custody provides a funds-custody ledger for Go applications.
//
// Custody is designed as a library, not a service. Many contributors fund
// it with the native asset; a contribution is accepted only when its value
// in USD, read from a price feed, reaches a fixed minimum. A single owner
// withdraws the whole balance, which resets the bookkeeping.
//
//   - Price conversion through a pluggable feed (Chainlink aggregator,
//     Redis-cached aggregator, deterministic mock)
//   - Per-contributor cumulative amounts and an insertion-ordered
//     contributor list
//   - Two withdrawal procedures with identical outcomes
//   - A contribution journal and withdrawal receipts in PostgreSQL,
//     SQLite, MongoDB, LevelDB or memory
//   - Lifecycle hooks for audit and metrics plugins
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/custody"
//	    "github.com/xraph/custody/pricefeed"
//	    "github.com/xraph/custody/store/memory"
//	)
//
//	adapter := pricefeed.NewAdapter(pricefeed.NewDefaultMock())
//
//	c, err := custody.New(owner, adapter, custody.WithStore(memory.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Stop()
//
//	// 1 ETH at 2000 USD clears the 50 USD minimum
//	_, err = c.Fund(ctx, contributor, custody.Ether(1))
//
//	// only the owner may withdraw
//	receipt, err := c.Withdraw(ctx, owner)
//
// # Errors
//
// Domain failures are *Error values with a stable code:
//
//	FundMe__InsufficientValue  "You need to spend more ETH!"
//	FundMe__NotOwner
//	FundMe__OracleUnavailable
//	FundMe__TransferFailed
//	FundMe__IndexOutOfRange
//
// Every failure leaves the ledger unchanged. Use errors.Is against the
// sentinels, or CodeOf to map an error to its code.
//
// # Amounts
//
// Amounts are *big.Int in wei. USD values carry 18 decimals. Conversion
// multiplies before dividing and truncates.
//
// # TypeID
//
// Journal records use TypeIDs:
//
//	ctb_01h2xcejqtf2nbrexx3vqjhp41  // Contribution ID
//	wdr_01h455vb4pex5vsknk084sn02q  // Withdrawal ID
package custody
