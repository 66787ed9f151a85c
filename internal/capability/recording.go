package capability

import "MarginLedger/internal/ledger"

// RecordingManager accepts everything by default while recording every
// hook invocation, and can be armed to veto. Used by tests and local
// tooling in place of a real risk engine.
type RecordingManager struct {
	Adjustments    []ManagerAdjustmentCall
	ManagerChanges []ManagerChangeCall

	RejectAdjustment error
	RejectChange     error
}

type ManagerAdjustmentCall struct {
	Account  ledger.AccountID
	Balances []ledger.AssetBalance
	Caller   ledger.Address
	Data     []byte
}

type ManagerChangeCall struct {
	Account    ledger.AccountID
	NewManager ledger.Address
	Data       []byte
}

func NewRecordingManager() *RecordingManager {
	return &RecordingManager{}
}

func (m *RecordingManager) HandleAdjustment(account ledger.AccountID, balances []ledger.AssetBalance,
	caller ledger.Address, data []byte) error {
	m.Adjustments = append(m.Adjustments, ManagerAdjustmentCall{
		Account:  account,
		Balances: balances,
		Caller:   caller,
		Data:     data,
	})
	return m.RejectAdjustment
}

func (m *RecordingManager) HandleManagerChange(account ledger.AccountID, newManager ledger.Address, data []byte) error {
	m.ManagerChanges = append(m.ManagerChanges, ManagerChangeCall{
		Account:    account,
		NewManager: newManager,
		Data:       data,
	})
	return m.RejectChange
}

// RecordingAsset passes proposed balances through unchanged (unless
// Override is set) and records every hook invocation.
type RecordingAsset struct {
	Adjustments    []AssetAdjustmentCall
	ManagerChanges []AssetManagerChangeCall

	// Override, when non-nil, decides the final balance instead of the
	// identity pass-through.
	Override func(pre, proposed int64) (int64, error)

	RejectChange error
}

type AssetAdjustmentCall struct {
	Account  ledger.AccountID
	SubID    ledger.SubID
	Pre      int64
	Proposed int64
	Manager  ledger.Address
	Caller   ledger.Address
	Data     []byte
}

type AssetManagerChangeCall struct {
	Account    ledger.AccountID
	OldManager ledger.Address
	NewManager ledger.Address
}

func NewRecordingAsset() *RecordingAsset {
	return &RecordingAsset{}
}

func (a *RecordingAsset) HandleAdjustment(account ledger.AccountID, subID ledger.SubID, pre, proposed int64,
	manager ledger.Address, caller ledger.Address, data []byte) (int64, error) {
	a.Adjustments = append(a.Adjustments, AssetAdjustmentCall{
		Account:  account,
		SubID:    subID,
		Pre:      pre,
		Proposed: proposed,
		Manager:  manager,
		Caller:   caller,
		Data:     data,
	})
	if a.Override != nil {
		return a.Override(pre, proposed)
	}
	return proposed, nil
}

func (a *RecordingAsset) HandleManagerChange(account ledger.AccountID, oldManager, newManager ledger.Address) error {
	a.ManagerChanges = append(a.ManagerChanges, AssetManagerChangeCall{
		Account:    account,
		OldManager: oldManager,
		NewManager: newManager,
	})
	return a.RejectChange
}
