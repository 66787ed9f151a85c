package ledger

import (
	"MarginLedger/internal/event"
)

// SetAssetAllowances overwrites the asset-wide allowance pair for each
// listed asset for the given delegate. Values must be non-negative.
func (l *Ledger) SetAssetAllowances(caller Address, id AccountID, delegate Address, allowances []AssetAllowance) error {
	return l.run(func() error {
		a, err := l.account(id)
		if err != nil {
			return err
		}
		if !l.isAuthorized(a, caller) {
			return &AuthorizationError{Account: id, Caller: caller, Op: "set asset allowances"}
		}

		for _, al := range allowances {
			if al.Positive < 0 || al.Negative < 0 {
				return invariantf("allowance for asset %s must be non-negative", al.Asset)
			}
			key := assetAllowanceKey{delegate: delegate, asset: al.Asset}
			l.writeAssetAllowance(a, key, al.Positive, al.Negative)

			l.emit(&event.AssetAllowanceSet{
				Account:  uint64(id),
				Delegate: string(delegate),
				Asset:    string(al.Asset),
				Positive: al.Positive,
				Negative: al.Negative,
			})
		}
		return nil
	})
}

// SetSubIDAllowances overwrites the sub-instrument-scoped allowance pair
// for each listed (asset, subID) for the given delegate.
func (l *Ledger) SetSubIDAllowances(caller Address, id AccountID, delegate Address, allowances []SubIDAllowance) error {
	return l.run(func() error {
		a, err := l.account(id)
		if err != nil {
			return err
		}
		if !l.isAuthorized(a, caller) {
			return &AuthorizationError{Account: id, Caller: caller, Op: "set subid allowances"}
		}

		for _, al := range allowances {
			if al.Positive < 0 || al.Negative < 0 {
				return invariantf("allowance for asset %s sub %d must be non-negative", al.Asset, al.SubID)
			}
			key := subAllowanceKey{delegate: delegate, asset: al.Asset, subID: al.SubID}
			l.writeSubAllowance(a, key, al.Positive, al.Negative)

			l.emit(&event.SubIDAllowanceSet{
				Account:  uint64(id),
				Delegate: string(delegate),
				Asset:    string(al.Asset),
				SubID:    uint64(al.SubID),
				Positive: al.Positive,
				Negative: al.Negative,
			})
		}
		return nil
	})
}

func (l *Ledger) writeAssetAllowance(a *account, key assetAllowanceKey, positive, negative int64) {
	if prev, ok := a.assetAllowances[key]; ok {
		prevVal := *prev
		l.undo.record(func() { *prev = prevVal })
		prev.positive, prev.negative = positive, negative
		return
	}
	a.assetAllowances[key] = &allowancePair{positive: positive, negative: negative}
	l.undo.record(func() { delete(a.assetAllowances, key) })
}

func (l *Ledger) writeSubAllowance(a *account, key subAllowanceKey, positive, negative int64) {
	if prev, ok := a.subAllowances[key]; ok {
		prevVal := *prev
		l.undo.record(func() { *prev = prevVal })
		prev.positive, prev.negative = positive, negative
		return
	}
	a.subAllowances[key] = &allowancePair{positive: positive, negative: negative}
	l.undo.record(func() { delete(a.subAllowances, key) })
}

// authorize admits a balance change of amount on behalf of delegate.
// Owners, blanket delegates and the assigned manager pass unconditionally.
// Otherwise the direction-matching allowance is consumed: the
// sub-instrument-scoped remaining first, then the asset-wide remainder.
// A zero amount always succeeds and consumes nothing.
func (l *Ledger) authorize(a *account, id AccountID, asset Address, subID SubID, delegate Address, amount int64) error {
	if amount == 0 {
		return nil
	}
	if l.isAuthorized(a, delegate) {
		return nil
	}

	need := amount
	if need < 0 {
		need = -need
	}

	sub := a.subAllowances[subAllowanceKey{delegate: delegate, asset: asset, subID: subID}]
	wide := a.assetAllowances[assetAllowanceKey{delegate: delegate, asset: asset}]

	var subRemaining, wideRemaining int64
	if amount > 0 {
		if sub != nil {
			subRemaining = sub.positive
		}
		if wide != nil {
			wideRemaining = wide.positive
		}
	} else {
		if sub != nil {
			subRemaining = sub.negative
		}
		if wide != nil {
			wideRemaining = wide.negative
		}
	}

	if need > subRemaining+wideRemaining {
		return &AllowanceError{
			Account:        id,
			Delegate:       delegate,
			Asset:          asset,
			SubID:          subID,
			Requested:      need,
			SubRemaining:   subRemaining,
			AssetRemaining: wideRemaining,
		}
	}

	fromSub := need
	if fromSub > subRemaining {
		fromSub = subRemaining
	}
	fromWide := need - fromSub

	if fromSub > 0 {
		prev := *sub
		l.undo.record(func() { *sub = prev })
		if amount > 0 {
			sub.positive -= fromSub
		} else {
			sub.negative -= fromSub
		}
	}
	if fromWide > 0 {
		prev := *wide
		l.undo.record(func() { *wide = prev })
		if amount > 0 {
			wide.positive -= fromWide
		} else {
			wide.negative -= fromWide
		}
	}

	ev := &event.AllowanceConsumed{
		Account:  uint64(id),
		Delegate: string(delegate),
		Asset:    string(asset),
		SubID:    uint64(subID),
		Amount:   amount,
	}
	if sub != nil {
		ev.HasSub = true
		ev.SubPositive, ev.SubNegative = sub.positive, sub.negative
	}
	if wide != nil {
		ev.HasAsset = true
		ev.AssetPositive, ev.AssetNegative = wide.positive, wide.negative
	}
	l.emit(ev)
	return nil
}

// AssetAllowanceOf returns the asset-wide remaining allowance pair for a
// delegate. Missing entries read as (0, 0).
func (l *Ledger) AssetAllowanceOf(id AccountID, delegate, asset Address) (positive, negative int64, err error) {
	a, err := l.account(id)
	if err != nil {
		return 0, 0, err
	}
	if p, ok := a.assetAllowances[assetAllowanceKey{delegate: delegate, asset: asset}]; ok {
		return p.positive, p.negative, nil
	}
	return 0, 0, nil
}

// SubIDAllowanceOf returns the sub-instrument-scoped remaining allowance
// pair for a delegate. Missing entries read as (0, 0).
func (l *Ledger) SubIDAllowanceOf(id AccountID, delegate, asset Address, subID SubID) (positive, negative int64, err error) {
	a, err := l.account(id)
	if err != nil {
		return 0, 0, err
	}
	if p, ok := a.subAllowances[subAllowanceKey{delegate: delegate, asset: asset, subID: subID}]; ok {
		return p.positive, p.negative, nil
	}
	return 0, 0, nil
}
