package ledger

import (
	"MarginLedger/internal/event"
)

// applyAdjustment runs the balance-mutation state machine for one leg:
//
//  1. read the pre-balance,
//  2. dispatch to the asset hook, whose return value is the authoritative
//     final balance (never re-derived by the ledger),
//  3. write the balance and diff pre vs post against zero to maintain the
//     held-asset index,
//  4. buffer the balance-adjusted event.
//
// Manager hooks (step 5) are the caller's responsibility because they are
// deduplicated per account across the entire outer call.
func (l *Ledger) applyAdjustment(id AccountID, a *account, asset Address, subID SubID, delta int64, caller Address, assetData []byte) (int64, error) {
	impl, err := l.asset(asset)
	if err != nil {
		return 0, err
	}

	key := balanceKey{asset: asset, subID: subID}
	e := a.entries[key]
	var pre int64
	if e != nil {
		pre = e.balance
	}

	post, err := impl.HandleAdjustment(id, subID, pre, pre+delta, a.manager, caller, assetData)
	if err != nil {
		return 0, &HookError{Hook: HookAsset, Addr: asset, Err: err}
	}

	l.writeBalance(a, key, e, pre, post)

	l.emit(&event.BalanceAdjusted{
		Account: uint64(id),
		Manager: string(a.manager),
		Asset:   string(asset),
		SubID:   uint64(subID),
		Pre:     pre,
		Post:    post,
		Caller:  string(caller),
	})
	return post, nil
}

// writeBalance stores post and keeps the held-asset index consistent:
// crossing to zero removes, crossing from zero adds, anything else leaves
// the index untouched. A removed entry's cached order is left stale.
func (l *Ledger) writeBalance(a *account, key balanceKey, e *balanceEntry, pre, post int64) {
	if e == nil {
		if post == 0 {
			// Nothing to materialize for a 0 -> 0 write.
			return
		}
		e = &balanceEntry{}
		a.entries[key] = e
		l.undo.record(func() { delete(a.entries, key) })
	} else {
		prevBalance, prevOrder := e.balance, e.order
		l.undo.record(func() {
			e.balance, e.order = prevBalance, prevOrder
		})
	}

	e.balance = post

	switch {
	case pre != 0 && post == 0:
		l.removeHeld(a, e.order)
	case pre == 0 && post != 0:
		e.order = l.addHeld(a, key)
	}
}

// notifyManagers runs the manager post-adjustment hook once per account,
// in first-touched order, against the final post-call balances.
func (l *Ledger) notifyManagers(touched *touchedAccounts, caller Address, managerData []byte) error {
	for _, id := range touched.order {
		a, err := l.account(id)
		if err != nil {
			return err
		}
		impl, err := l.manager(a.manager)
		if err != nil {
			return err
		}
		if err := impl.HandleAdjustment(id, l.portfolio(a), caller, managerData); err != nil {
			return &HookError{Hook: HookManager, Addr: a.manager, Err: err}
		}
	}
	return nil
}

// touchedAccounts deduplicates manager notifications while preserving
// first-touched order.
type touchedAccounts struct {
	seen  map[AccountID]bool
	order []AccountID
}

func newTouchedAccounts() *touchedAccounts {
	return &touchedAccounts{seen: make(map[AccountID]bool)}
}

func (t *touchedAccounts) add(id AccountID) {
	if t.seen[id] {
		return
	}
	t.seen[id] = true
	t.order = append(t.order, id)
}
