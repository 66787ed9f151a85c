package capability

import (
	"MarginLedger/internal/ledger"
)

// NopManager is the pass-through policy: every adjustment and manager
// change is approved. Suitable as the default manager for accounts with no
// risk constraints attached.
type NopManager struct{}

func NewNopManager() *NopManager { return &NopManager{} }

func (m *NopManager) HandleAdjustment(account ledger.AccountID, balances []ledger.AssetBalance,
	caller ledger.Address, data []byte) error {
	return nil
}

func (m *NopManager) HandleManagerChange(account ledger.AccountID, newManager ledger.Address, data []byte) error {
	return nil
}
