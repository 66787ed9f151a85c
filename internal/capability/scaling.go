package capability

import "MarginLedger/internal/ledger"

// ScalingAsset attenuates every adjustment by Num/Den before accepting it,
// the way a socialized-loss module haircuts credits during a deficit. The
// ledger treats the returned value as authoritative, so conservation holds
// per-leg against the scaled amount rather than the naive one.
type ScalingAsset struct {
	Num int64
	Den int64
}

func NewScalingAsset(num, den int64) *ScalingAsset {
	return &ScalingAsset{Num: num, Den: den}
}

func (s *ScalingAsset) HandleAdjustment(account ledger.AccountID, subID ledger.SubID, pre, proposed int64,
	manager ledger.Address, caller ledger.Address, data []byte) (int64, error) {
	delta := proposed - pre
	return pre + delta*s.Num/s.Den, nil
}

func (s *ScalingAsset) HandleManagerChange(account ledger.AccountID, oldManager, newManager ledger.Address) error {
	return nil
}
