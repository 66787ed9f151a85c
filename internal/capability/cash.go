// Package capability provides reference Manager and Asset implementations
// for the ledger's hook contract. Production risk engines and instrument
// modules satisfy the same interfaces; these built-ins cover plain cash
// accounting, hook-attenuated assets, and a minimal solvency manager.
package capability

import (
	"fmt"

	"MarginLedger/internal/ledger"
)

// CashAsset is the simplest balance semantics: the proposed post-balance
// is accepted verbatim. With AllowNegative unset, adjustments that would
// take a balance below zero are rejected.
type CashAsset struct {
	AllowNegative bool
}

func NewCashAsset(allowNegative bool) *CashAsset {
	return &CashAsset{AllowNegative: allowNegative}
}

func (c *CashAsset) HandleAdjustment(account ledger.AccountID, subID ledger.SubID, pre, proposed int64,
	manager ledger.Address, caller ledger.Address, data []byte) (int64, error) {
	if !c.AllowNegative && proposed < 0 {
		return 0, fmt.Errorf("account %d sub %d: balance would go negative (%d)", account, subID, proposed)
	}
	return proposed, nil
}

func (c *CashAsset) HandleManagerChange(account ledger.AccountID, oldManager, newManager ledger.Address) error {
	return nil
}
