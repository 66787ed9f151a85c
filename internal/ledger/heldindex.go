package ledger

// The held-asset index is a per-account sparse set of (asset, subID) pairs
// with non-zero balance. Insertion appends; removal swaps the last element
// into the vacated slot and patches that element's cached order, keeping
// both O(1). List order is therefore NOT stable across removals.

// addHeld appends key to the account's held list and returns its position.
func (l *Ledger) addHeld(a *account, key balanceKey) int {
	order := len(a.held)
	a.held = append(a.held, key)
	l.undo.record(func() { a.held = a.held[:order] })
	return order
}

// removeHeld removes the element at order via swap-with-last. The removed
// entry's own cached order is left stale on purpose; the moved element's
// cached order is updated to its new slot.
func (l *Ledger) removeHeld(a *account, order int) {
	last := len(a.held) - 1
	removed := a.held[order]

	if order != last {
		moved := a.held[last]
		movedEntry := a.entries[moved]
		a.held[order] = moved
		movedEntry.order = order

		l.undo.record(func() {
			movedEntry.order = last
			a.held = a.held[:last+1]
			a.held[last] = moved
			a.held[order] = removed
		})
	} else {
		l.undo.record(func() {
			a.held = a.held[:last+1]
			a.held[last] = removed
		})
	}
	a.held = a.held[:last]
}

// clearHeld empties the account's held list in one pass, resetting every
// member's cached order to the non-trusted zero value. Used only by the
// bulk sweep, where every entry moves at once and per-entry swap-removal
// would perturb positions mid-iteration for no benefit.
func (l *Ledger) clearHeld(a *account) {
	prevHeld := a.held
	prevOrders := make([]int, len(prevHeld))
	for i, key := range prevHeld {
		e := a.entries[key]
		prevOrders[i] = e.order
		e.order = 0
	}
	a.held = nil

	l.undo.record(func() {
		for i, key := range prevHeld {
			a.entries[key].order = prevOrders[i]
		}
		a.held = prevHeld
	})
}

// portfolio enumerates the account's non-zero balances in current index
// order. The order is not stable across mutations.
func (l *Ledger) portfolio(a *account) []AssetBalance {
	out := make([]AssetBalance, len(a.held))
	for i, key := range a.held {
		out[i] = AssetBalance{
			Asset:   key.asset,
			SubID:   key.subID,
			Balance: a.entries[key].balance,
		}
	}
	return out
}

// GetAccountBalances returns the account's non-zero balances in current
// held-asset index order.
func (l *Ledger) GetAccountBalances(id AccountID) ([]AssetBalance, error) {
	a, err := l.account(id)
	if err != nil {
		return nil, err
	}
	return l.portfolio(a), nil
}

// GetBalance returns the signed balance for one (account, asset, subID)
// triple. Untouched triples read as zero.
func (l *Ledger) GetBalance(id AccountID, asset Address, subID SubID) (int64, error) {
	a, err := l.account(id)
	if err != nil {
		return 0, err
	}
	if e, ok := a.entries[balanceKey{asset: asset, subID: subID}]; ok {
		return e.balance, nil
	}
	return 0, nil
}
