package ledger

import (
	"MarginLedger/internal/event"
)

// CreateAccount allocates a fresh monotonically increasing account id and
// assigns its owner and manager. The manager must already be registered.
func (l *Ledger) CreateAccount(owner, manager Address) (AccountID, error) {
	var id AccountID
	err := l.run(func() error {
		if _, err := l.manager(manager); err != nil {
			return err
		}

		l.nextID++
		id = l.nextID
		l.accounts[id] = newAccount(owner, manager)
		l.undo.record(func() {
			delete(l.accounts, id)
			l.nextID--
		})

		l.emit(&event.AccountCreated{
			Account: uint64(id),
			Owner:   string(owner),
			Manager: string(manager),
		})
		return nil
	})
	return id, err
}

// ChangeManager reassigns the account's manager. The old manager is
// notified first and may veto; every distinct held asset is notified once
// (deduplicated across sub-instruments); then the new manager validates
// the account's full portfolio under its own risk model via the standard
// post-adjustment hook. A change to the currently assigned manager is
// rejected to avoid redundant event noise.
func (l *Ledger) ChangeManager(caller Address, id AccountID, newManager Address, data []byte) error {
	return l.run(func() error {
		a, err := l.account(id)
		if err != nil {
			return err
		}
		if !l.isAuthorized(a, caller) {
			return &AuthorizationError{Account: id, Caller: caller, Op: "change manager"}
		}
		if newManager == a.manager {
			return invariantf("account %d already managed by %s", id, newManager)
		}

		newImpl, err := l.manager(newManager)
		if err != nil {
			return err
		}
		oldImpl, err := l.manager(a.manager)
		if err != nil {
			return err
		}

		oldManager := a.manager
		if err := oldImpl.HandleManagerChange(id, newManager, data); err != nil {
			return &HookError{Hook: HookManager, Addr: oldManager, Err: err}
		}

		// Notify each held asset once, deduplicated across sub-instruments.
		seen := make(map[Address]bool)
		for _, key := range a.held {
			if seen[key.asset] {
				continue
			}
			seen[key.asset] = true
			impl, err := l.asset(key.asset)
			if err != nil {
				return err
			}
			if err := impl.HandleManagerChange(id, oldManager, newManager); err != nil {
				return &HookError{Hook: HookAsset, Addr: key.asset, Err: err}
			}
		}

		a.manager = newManager
		l.undo.record(func() { a.manager = oldManager })

		l.emit(&event.ManagerChanged{
			Account:    uint64(id),
			OldManager: string(oldManager),
			NewManager: string(newManager),
		})

		// Zero-effect post-adjustment hook: the new manager sees the full
		// portfolio and may reject the takeover.
		if err := newImpl.HandleAdjustment(id, l.portfolio(a), caller, data); err != nil {
			return &HookError{Hook: HookManager, Addr: newManager, Err: err}
		}
		return nil
	})
}

// BurnAccount destroys the account identity permanently. Only the owner or
// a blanket delegate may burn, and only while the account holds no
// non-zero-balance entries.
func (l *Ledger) BurnAccount(caller Address, id AccountID) error {
	return l.run(func() error {
		a, err := l.account(id)
		if err != nil {
			return err
		}
		if caller != a.owner && !a.delegates[caller] {
			return &AuthorizationError{Account: id, Caller: caller, Op: "burn account"}
		}
		if len(a.held) != 0 {
			return invariantf("account %d still holds %d assets", id, len(a.held))
		}

		delete(l.accounts, id)
		l.undo.record(func() { l.accounts[id] = a })

		l.emit(&event.AccountBurned{
			Account: uint64(id),
			Owner:   string(a.owner),
		})
		return nil
	})
}

// SetDelegate grants or revokes blanket delegated authority over the
// account. This is the owner-granted capability consulted by the blanket
// authorization check; it is orthogonal to the allowance book. Only the
// owner may grant it.
func (l *Ledger) SetDelegate(caller Address, id AccountID, delegate Address, enabled bool) error {
	return l.run(func() error {
		a, err := l.account(id)
		if err != nil {
			return err
		}
		if caller != a.owner {
			return &AuthorizationError{Account: id, Caller: caller, Op: "set delegate"}
		}

		prev := a.delegates[delegate]
		a.delegates[delegate] = enabled
		l.undo.record(func() { a.delegates[delegate] = prev })

		l.emit(&event.DelegateSet{
			Account:  uint64(id),
			Delegate: string(delegate),
			Enabled:  enabled,
		})
		return nil
	})
}

// AccountOwner returns the registered owner of an account.
func (l *Ledger) AccountOwner(id AccountID) (Address, error) {
	a, err := l.account(id)
	if err != nil {
		return "", err
	}
	return a.owner, nil
}

// AccountManager returns the currently assigned manager of an account.
func (l *Ledger) AccountManager(id AccountID) (Address, error) {
	a, err := l.account(id)
	if err != nil {
		return "", err
	}
	return a.manager, nil
}

// IsDelegate reports whether addr holds blanket authority over the account.
func (l *Ledger) IsDelegate(id AccountID, addr Address) (bool, error) {
	a, err := l.account(id)
	if err != nil {
		return false, err
	}
	return a.delegates[addr], nil
}
