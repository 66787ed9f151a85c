package capability

import (
	"fmt"

	"MarginLedger/internal/ledger"
)

// FloorManager is a minimal solvency policy: after every adjustment it
// sums the account's balances in the watched asset across sub-instruments
// and rejects the call if the total dropped below Floor. Real risk engines
// replace this with a full margin model behind the same interface.
type FloorManager struct {
	Watch ledger.Address
	Floor int64
}

func NewFloorManager(watch ledger.Address, floor int64) *FloorManager {
	return &FloorManager{Watch: watch, Floor: floor}
}

func (m *FloorManager) HandleAdjustment(account ledger.AccountID, balances []ledger.AssetBalance,
	caller ledger.Address, data []byte) error {
	var total int64
	for _, b := range balances {
		if b.Asset == m.Watch {
			total += b.Balance
		}
	}
	if total < m.Floor {
		return fmt.Errorf("account %d below floor for %s: have %d, need %d", account, m.Watch, total, m.Floor)
	}
	return nil
}

func (m *FloorManager) HandleManagerChange(account ledger.AccountID, newManager ledger.Address, data []byte) error {
	return nil
}
