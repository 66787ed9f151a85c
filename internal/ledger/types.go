package ledger

// AccountID identifies an owned account. Ids are allocated monotonically
// and never reused, even after a burn.
type AccountID uint64

// SubID distinguishes instances within one asset type (e.g. a specific
// strike/expiry). SubID 0 is an ordinary sub-instrument, not a sentinel.
type SubID uint64

// Address is the identity of a party or capability module: owners,
// delegates, managers and assets are all addressed this way.
type Address string

// AssetBalance is one row of an account's portfolio.
type AssetBalance struct {
	Asset   Address
	SubID   SubID
	Balance int64
}

// Transfer is a symmetric two-party balance movement: a debit of Amount on
// From and a credit of Amount on To for the same (Asset, SubID).
type Transfer struct {
	From      AccountID
	To        AccountID
	Asset     Address
	SubID     SubID
	Amount    int64
	AssetData []byte
}

// Adjustment is a single-account, asymmetric balance change reserved for
// privileged callers (the account's manager or the asset itself).
type Adjustment struct {
	Account   AccountID
	Asset     Address
	SubID     SubID
	Amount    int64
	AssetData []byte
}

// AssetAllowance is one asset-wide allowance pair written by
// SetAssetAllowances.
type AssetAllowance struct {
	Asset    Address
	Positive int64
	Negative int64
}

// SubIDAllowance is one sub-instrument-scoped allowance pair written by
// SetSubIDAllowances.
type SubIDAllowance struct {
	Asset    Address
	SubID    SubID
	Positive int64
	Negative int64
}

// balanceKey keys an account's balance entries and held-asset records.
type balanceKey struct {
	asset Address
	subID SubID
}

// balanceEntry holds a signed balance and the cached position of this
// entry in the account's held-asset list. order is meaningful only while
// balance != 0: it is deliberately left stale on removal to avoid a
// redundant write, so only code paths that hold balance != 0 may trust it.
type balanceEntry struct {
	balance int64
	order   int
}

// allowancePair is a direction-aware pair of non-negative remaining
// quantities.
type allowancePair struct {
	positive int64
	negative int64
}

type assetAllowanceKey struct {
	delegate Address
	asset    Address
}

type subAllowanceKey struct {
	delegate Address
	asset    Address
	subID    SubID
}

// account is the per-account state bundle.
type account struct {
	owner   Address
	manager Address

	// entries persist at zero balance (with a stale order) once touched;
	// held contains exactly the keys with non-zero balance.
	entries map[balanceKey]*balanceEntry
	held    []balanceKey

	// delegates hold blanket authority granted by the owner, orthogonal
	// to the allowance book.
	delegates map[Address]bool

	assetAllowances map[assetAllowanceKey]*allowancePair
	subAllowances   map[subAllowanceKey]*allowancePair
}

func newAccount(owner, manager Address) *account {
	return &account{
		owner:           owner,
		manager:         manager,
		entries:         make(map[balanceKey]*balanceEntry),
		delegates:       make(map[Address]bool),
		assetAllowances: make(map[assetAllowanceKey]*allowancePair),
		subAllowances:   make(map[subAllowanceKey]*allowancePair),
	}
}
