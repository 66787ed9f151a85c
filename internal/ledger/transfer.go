package ledger

import (
	"MarginLedger/internal/event"
)

// SubmitTransfer applies one symmetric transfer: a debit of Amount on From
// and a credit of Amount on To for the same (Asset, SubID). Both legs are
// allowance-authorized for the caller before any balance moves; manager
// hooks run once for each account after both legs settle.
func (l *Ledger) SubmitTransfer(caller Address, t Transfer, managerData []byte) error {
	return l.run(func() error {
		return l.applyTransfers(caller, []Transfer{t}, managerData)
	})
}

// SubmitTransfers applies a batch of transfers in array order. All legs
// are allowance-checked, balance-mutated and index-updated first; only
// afterwards does the manager hook fire, exactly once per distinct account
// touched across the whole batch, in first-touched order. Batching exists
// to amortize the expensive risk-check hook across many position changes.
func (l *Ledger) SubmitTransfers(caller Address, transfers []Transfer, managerData []byte) error {
	return l.run(func() error {
		return l.applyTransfers(caller, transfers, managerData)
	})
}

func (l *Ledger) applyTransfers(caller Address, transfers []Transfer, managerData []byte) error {
	touched := newTouchedAccounts()

	for i := range transfers {
		t := transfers[i]
		if t.From == t.To {
			return invariantf("transfer from account %d to itself", t.From)
		}

		from, err := l.account(t.From)
		if err != nil {
			return err
		}
		to, err := l.account(t.To)
		if err != nil {
			return err
		}

		// Symmetric legs: -Amount on from, +Amount on to. Both must be
		// authorized before either balance moves.
		if err := l.authorize(from, t.From, t.Asset, t.SubID, caller, -t.Amount); err != nil {
			return err
		}
		if err := l.authorize(to, t.To, t.Asset, t.SubID, caller, t.Amount); err != nil {
			return err
		}

		if _, err := l.applyAdjustment(t.From, from, t.Asset, t.SubID, -t.Amount, caller, t.AssetData); err != nil {
			return err
		}
		if _, err := l.applyAdjustment(t.To, to, t.Asset, t.SubID, t.Amount, caller, t.AssetData); err != nil {
			return err
		}

		touched.add(t.From)
		touched.add(t.To)
	}

	return l.notifyManagers(touched, caller, managerData)
}

// AdjustBalance applies a single-account, asymmetric balance change. Only
// the account's assigned manager or the asset contract named in the
// adjustment may call it; the allowance book is skipped, but both hooks
// still run. Returns the hook-adjusted final balance.
func (l *Ledger) AdjustBalance(caller Address, adj Adjustment, managerData []byte) (int64, error) {
	var post int64
	err := l.run(func() error {
		a, err := l.account(adj.Account)
		if err != nil {
			return err
		}
		if caller != a.manager && caller != adj.Asset {
			return &AuthorizationError{Account: adj.Account, Caller: caller, Op: "adjust balance"}
		}

		post, err = l.applyAdjustment(adj.Account, a, adj.Asset, adj.SubID, adj.Amount, caller, adj.AssetData)
		if err != nil {
			return err
		}

		touched := newTouchedAccounts()
		touched.add(adj.Account)
		return l.notifyManagers(touched, caller, managerData)
	})
	return post, err
}

// TransferAll sweeps every asset the source account currently holds into
// the destination in one pass. Destination legs run the full adjustment
// machine (with perAssetData[i] when supplied); source entries are zeroed
// directly and the source index is bulk-cleared via clearHeld rather than
// repeated swap-removal, which would perturb positions mid-iteration.
// perAssetData must be empty or match the held-asset count exactly.
func (l *Ledger) TransferAll(caller Address, from, to AccountID, managerData []byte, perAssetData [][]byte) error {
	return l.run(func() error {
		if from == to {
			return invariantf("sweep from account %d to itself", from)
		}

		fromAcc, err := l.account(from)
		if err != nil {
			return err
		}
		toAcc, err := l.account(to)
		if err != nil {
			return err
		}
		if !l.isAuthorized(fromAcc, caller) {
			return &AuthorizationError{Account: from, Caller: caller, Op: "transfer all"}
		}
		if !l.isAuthorized(toAcc, caller) {
			return &AuthorizationError{Account: to, Caller: caller, Op: "transfer all"}
		}

		if len(perAssetData) != 0 && len(perAssetData) != len(fromAcc.held) {
			return invariantf("per-asset data length %d does not match held-asset count %d",
				len(perAssetData), len(fromAcc.held))
		}

		// Snapshot the held list: destination-leg adjustments never touch
		// the source index (from != to), but the source writes below must
		// iterate a stable view.
		held := make([]balanceKey, len(fromAcc.held))
		copy(held, fromAcc.held)

		for i, key := range held {
			e := fromAcc.entries[key]
			amount := e.balance

			var data []byte
			if len(perAssetData) != 0 {
				data = perAssetData[i]
			}

			if _, err := l.applyAdjustment(to, toAcc, key.asset, key.subID, amount, caller, data); err != nil {
				return err
			}

			// Source side: direct zero write. The asset already observed
			// the movement through the destination leg; letting it
			// attenuate the source write could strand a non-zero balance
			// behind the bulk index clear.
			prevBalance, prevOrder := e.balance, e.order
			l.undo.record(func() {
				e.balance, e.order = prevBalance, prevOrder
			})
			e.balance = 0

			l.emit(&event.BalanceAdjusted{
				Account: uint64(from),
				Manager: string(fromAcc.manager),
				Asset:   string(key.asset),
				SubID:   uint64(key.subID),
				Pre:     amount,
				Post:    0,
				Caller:  string(caller),
			})
		}

		l.clearHeld(fromAcc)

		l.emit(&event.AccountSwept{
			From:    uint64(from),
			To:      uint64(to),
			Entries: len(held),
		})

		touched := newTouchedAccounts()
		touched.add(from)
		touched.add(to)
		return l.notifyManagers(touched, caller, managerData)
	})
}
