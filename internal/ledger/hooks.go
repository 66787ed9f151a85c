package ledger

// Manager is the pluggable risk/policy capability assigned to an account.
// It is consulted after every balance change touching the account and may
// reject the whole enclosing call. Implementations may read the account's
// balances (they receive the post-change portfolio) but never get direct
// write access to ledger storage.
type Manager interface {
	// HandleAdjustment observes the account's final post-call balances.
	// Returning an error aborts and unwinds the entire enclosing call.
	HandleAdjustment(account AccountID, balances []AssetBalance, caller Address, data []byte) error

	// HandleManagerChange is invoked on the OLD manager before it is
	// replaced. Returning an error vetoes the change.
	HandleManagerChange(account AccountID, newManager Address, data []byte) error
}

// Asset is the pluggable balance-semantics capability for one asset type.
// Its HandleAdjustment return value is the authoritative final balance:
// the ledger writes it verbatim and never re-derives it.
type Asset interface {
	// HandleAdjustment is given the pre-balance and the proposed
	// post-balance and returns the actual final balance. It may attenuate
	// the change (e.g. socialized-loss ratios) or reject it outright.
	HandleAdjustment(account AccountID, subID SubID, pre, proposed int64,
		manager Address, caller Address, data []byte) (int64, error)

	// HandleManagerChange is invoked once per distinct held asset when an
	// account's manager is reassigned.
	HandleManagerChange(account AccountID, oldManager, newManager Address) error
}
