package event

// AssetAllowanceSet is emitted per (asset, delegate) pair written by
// SetAssetAllowances. Allowance writes overwrite, never accumulate.
type AssetAllowanceSet struct {
	Account  uint64 `json:"account"`
	Delegate string `json:"delegate"`
	Asset    string `json:"asset"`
	Positive int64  `json:"positive"`
	Negative int64  `json:"negative"`
}

func (e *AssetAllowanceSet) EventType() Type   { return TypeAssetAllowanceSet }
func (e *AssetAllowanceSet) AccountID() uint64 { return e.Account }

// SubIDAllowanceSet is the sub-instrument-scoped variant.
type SubIDAllowanceSet struct {
	Account  uint64 `json:"account"`
	Delegate string `json:"delegate"`
	Asset    string `json:"asset"`
	SubID    uint64 `json:"sub_id"`
	Positive int64  `json:"positive"`
	Negative int64  `json:"negative"`
}

func (e *SubIDAllowanceSet) EventType() Type   { return TypeSubIDAllowanceSet }
func (e *SubIDAllowanceSet) AccountID() uint64 { return e.Account }

// AllowanceConsumed is emitted when a delegated mutation draws down
// allowance. It records the remaining pairs on both tiers AFTER the draw,
// so replaying the event log reconstructs allowance state exactly. The
// HasSub/HasAsset flags distinguish an absent tier record from one drained
// to zero; replay must not materialize records the original never had.
type AllowanceConsumed struct {
	Account  uint64 `json:"account"`
	Delegate string `json:"delegate"`
	Asset    string `json:"asset"`
	SubID    uint64 `json:"sub_id"`
	Amount   int64  `json:"amount"` // signed requested delta

	HasSub      bool  `json:"has_sub"`
	SubPositive int64 `json:"sub_positive"`
	SubNegative int64 `json:"sub_negative"`

	HasAsset      bool  `json:"has_asset"`
	AssetPositive int64 `json:"asset_positive"`
	AssetNegative int64 `json:"asset_negative"`
}

func (e *AllowanceConsumed) EventType() Type   { return TypeAllowanceConsumed }
func (e *AllowanceConsumed) AccountID() uint64 { return e.Account }
