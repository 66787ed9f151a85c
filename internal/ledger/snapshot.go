package ledger

import (
	"sort"
)

// Snapshot is the full serializable ledger state, used for recovery. Maps
// are flattened into deterministically sorted slices so the encoded form
// is stable across runs.
type Snapshot struct {
	// LastAccount is the most recently allocated account id; burned ids
	// stay allocated so they are never reused.
	LastAccount uint64            `json:"last_account"`
	Accounts    []AccountSnapshot `json:"accounts"`
}

type AccountSnapshot struct {
	ID      uint64 `json:"id"`
	Owner   string `json:"owner"`
	Manager string `json:"manager"`

	Delegates []string `json:"delegates,omitempty"`

	// Held preserves index order; Balances carries every materialized
	// entry, including zero-balance entries with their stale orders.
	Held     []HeldSnapshot    `json:"held,omitempty"`
	Balances []BalanceSnapshot `json:"balances,omitempty"`

	AssetAllowances []AssetAllowanceSnapshot `json:"asset_allowances,omitempty"`
	SubIDAllowances []SubIDAllowanceSnapshot `json:"sub_id_allowances,omitempty"`
}

type HeldSnapshot struct {
	Asset string `json:"asset"`
	SubID uint64 `json:"sub_id"`
}

type BalanceSnapshot struct {
	Asset   string `json:"asset"`
	SubID   uint64 `json:"sub_id"`
	Balance int64  `json:"balance"`
	Order   int    `json:"order"`
}

type AssetAllowanceSnapshot struct {
	Delegate string `json:"delegate"`
	Asset    string `json:"asset"`
	Positive int64  `json:"positive"`
	Negative int64  `json:"negative"`
}

type SubIDAllowanceSnapshot struct {
	Delegate string `json:"delegate"`
	Asset    string `json:"asset"`
	SubID    uint64 `json:"sub_id"`
	Positive int64  `json:"positive"`
	Negative int64  `json:"negative"`
}

// Snapshot captures the current ledger state. Capability registrations are
// code wiring and are not part of the snapshot.
func (l *Ledger) Snapshot() *Snapshot {
	snap := &Snapshot{
		LastAccount: uint64(l.nextID),
		Accounts:    make([]AccountSnapshot, 0, len(l.accounts)),
	}

	ids := make([]AccountID, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		a := l.accounts[id]
		as := AccountSnapshot{
			ID:      uint64(id),
			Owner:   string(a.owner),
			Manager: string(a.manager),
		}

		for d, enabled := range a.delegates {
			if enabled {
				as.Delegates = append(as.Delegates, string(d))
			}
		}
		sort.Strings(as.Delegates)

		for _, key := range a.held {
			as.Held = append(as.Held, HeldSnapshot{Asset: string(key.asset), SubID: uint64(key.subID)})
		}

		for key, e := range a.entries {
			as.Balances = append(as.Balances, BalanceSnapshot{
				Asset:   string(key.asset),
				SubID:   uint64(key.subID),
				Balance: e.balance,
				Order:   e.order,
			})
		}
		sort.Slice(as.Balances, func(i, j int) bool {
			if as.Balances[i].Asset != as.Balances[j].Asset {
				return as.Balances[i].Asset < as.Balances[j].Asset
			}
			return as.Balances[i].SubID < as.Balances[j].SubID
		})

		for key, p := range a.assetAllowances {
			as.AssetAllowances = append(as.AssetAllowances, AssetAllowanceSnapshot{
				Delegate: string(key.delegate),
				Asset:    string(key.asset),
				Positive: p.positive,
				Negative: p.negative,
			})
		}
		sort.Slice(as.AssetAllowances, func(i, j int) bool {
			x, y := as.AssetAllowances[i], as.AssetAllowances[j]
			if x.Delegate != y.Delegate {
				return x.Delegate < y.Delegate
			}
			return x.Asset < y.Asset
		})

		for key, p := range a.subAllowances {
			as.SubIDAllowances = append(as.SubIDAllowances, SubIDAllowanceSnapshot{
				Delegate: string(key.delegate),
				Asset:    string(key.asset),
				SubID:    uint64(key.subID),
				Positive: p.positive,
				Negative: p.negative,
			})
		}
		sort.Slice(as.SubIDAllowances, func(i, j int) bool {
			x, y := as.SubIDAllowances[i], as.SubIDAllowances[j]
			if x.Delegate != y.Delegate {
				return x.Delegate < y.Delegate
			}
			if x.Asset != y.Asset {
				return x.Asset < y.Asset
			}
			return x.SubID < y.SubID
		})

		snap.Accounts = append(snap.Accounts, as)
	}

	return snap
}

// Restore replaces the ledger's state with the snapshot's. Capability
// registries are untouched: callers register the same modules before or
// after restoring.
func (l *Ledger) Restore(snap *Snapshot) {
	l.nextID = AccountID(snap.LastAccount)
	l.accounts = make(map[AccountID]*account, len(snap.Accounts))
	l.undo = nil
	l.pending = nil

	for _, as := range snap.Accounts {
		a := newAccount(Address(as.Owner), Address(as.Manager))

		for _, d := range as.Delegates {
			a.delegates[Address(d)] = true
		}

		for _, b := range as.Balances {
			key := balanceKey{asset: Address(b.Asset), subID: SubID(b.SubID)}
			a.entries[key] = &balanceEntry{balance: b.Balance, order: b.Order}
		}

		a.held = make([]balanceKey, len(as.Held))
		for i, h := range as.Held {
			a.held[i] = balanceKey{asset: Address(h.Asset), subID: SubID(h.SubID)}
		}

		for _, al := range as.AssetAllowances {
			key := assetAllowanceKey{delegate: Address(al.Delegate), asset: Address(al.Asset)}
			a.assetAllowances[key] = &allowancePair{positive: al.Positive, negative: al.Negative}
		}
		for _, al := range as.SubIDAllowances {
			key := subAllowanceKey{delegate: Address(al.Delegate), asset: Address(al.Asset), subID: SubID(al.SubID)}
			a.subAllowances[key] = &allowancePair{positive: al.Positive, negative: al.Negative}
		}

		l.accounts[AccountID(as.ID)] = a
	}
}
