package ledger

import (
	"fmt"

	"MarginLedger/internal/event"
)

// Ledger is a self-contained ledger state handle: account registry,
// allowance book, balance entries and held-asset indexes, plus the
// capability registries for Manager and Asset modules.
//
// A Ledger is NOT safe for concurrent use. The execution model is a single
// global sequential ledger: the embedding service serializes every call,
// and every call either fully commits or fully fails. Capability hooks are
// synchronous nested calls inside the same unit of work; the ledger is not
// re-entrant for mutations from inside a hook.
type Ledger struct {
	nextID   AccountID
	accounts map[AccountID]*account

	assets   map[Address]Asset
	managers map[Address]Manager

	undo    undoLog
	pending []event.Event
	sink    func(event.Event)
}

func New() *Ledger {
	return &Ledger{
		accounts: make(map[AccountID]*account),
		assets:   make(map[Address]Asset),
		managers: make(map[Address]Manager),
	}
}

// SetEventSink installs the callback receiving committed events, in
// emission order, after the enclosing operation succeeds. Events from a
// failed operation are never delivered.
func (l *Ledger) SetEventSink(fn func(event.Event)) {
	l.sink = fn
}

// RegisterAsset installs the balance-semantics capability for an asset
// address. Registration is code wiring, not ledger state: it is not
// journaled and cannot be rolled back.
func (l *Ledger) RegisterAsset(addr Address, impl Asset) error {
	if impl == nil {
		return fmt.Errorf("register asset %s: nil implementation", addr)
	}
	if _, ok := l.assets[addr]; ok {
		return fmt.Errorf("register asset %s: already registered", addr)
	}
	l.assets[addr] = impl
	return nil
}

// RegisterManager installs a risk/policy capability under an address.
func (l *Ledger) RegisterManager(addr Address, impl Manager) error {
	if impl == nil {
		return fmt.Errorf("register manager %s: nil implementation", addr)
	}
	if _, ok := l.managers[addr]; ok {
		return fmt.Errorf("register manager %s: already registered", addr)
	}
	l.managers[addr] = impl
	return nil
}

// run executes op with all-or-nothing semantics: on error every mutation
// recorded since entry is unwound and buffered events are dropped; on
// success the undo entries are discarded and events flushed to the sink.
func (l *Ledger) run(op func() error) error {
	undoMark := len(l.undo)
	evMark := len(l.pending)

	if err := op(); err != nil {
		l.undo.revertTo(undoMark)
		l.pending = l.pending[:evMark]
		return err
	}

	l.undo.discardTo(undoMark)
	if l.sink != nil {
		for _, ev := range l.pending[evMark:] {
			l.sink(ev)
		}
	}
	l.pending = l.pending[:evMark]
	return nil
}

// emit buffers an event for delivery on commit.
func (l *Ledger) emit(ev event.Event) {
	l.pending = append(l.pending, ev)
}

func (l *Ledger) account(id AccountID) (*account, error) {
	a, ok := l.accounts[id]
	if !ok {
		return nil, invariantf("account %d does not exist", id)
	}
	return a, nil
}

func (l *Ledger) asset(addr Address) (Asset, error) {
	impl, ok := l.assets[addr]
	if !ok {
		return nil, invariantf("asset %s is not registered", addr)
	}
	return impl, nil
}

func (l *Ledger) manager(addr Address) (Manager, error) {
	impl, ok := l.managers[addr]
	if !ok {
		return nil, invariantf("manager %s is not registered", addr)
	}
	return impl, nil
}

// isAuthorized is the blanket authorization check for owner-gated
// operations: the registered owner, an owner-granted blanket delegate, or
// the account's assigned manager. It always short-circuits the two-tier
// allowance consumption.
func (l *Ledger) isAuthorized(a *account, caller Address) bool {
	return caller == a.owner || a.delegates[caller] || caller == a.manager
}

// NumAccounts returns the number of live (non-burned) accounts.
func (l *Ledger) NumAccounts() int {
	return len(l.accounts)
}
