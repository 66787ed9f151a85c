package ledger

import "fmt"

// AuthorizationError reports a caller lacking owner/delegate/manager/asset
// capability for the requested operation.
type AuthorizationError struct {
	Account AccountID
	Caller  Address
	Op      string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: caller %s not authorized for account %d", e.Op, e.Caller, e.Account)
}

// AllowanceError reports that the sum of the sub-instrument-scoped and
// asset-wide remaining allowance is insufficient for the request. Both
// remaining values are surfaced so the caller can act on them.
type AllowanceError struct {
	Account        AccountID
	Delegate       Address
	Asset          Address
	SubID          SubID
	Requested      int64
	SubRemaining   int64
	AssetRemaining int64
}

func (e *AllowanceError) Error() string {
	return fmt.Sprintf(
		"allowance exhausted: account %d delegate %s asset %s sub %d: need %d, remaining sub=%d asset=%d",
		e.Account, e.Delegate, e.Asset, e.SubID, e.Requested, e.SubRemaining, e.AssetRemaining,
	)
}

// InvariantError reports a request that violates a ledger invariant:
// burn with non-empty holdings, self-transfer, no-op manager change,
// mismatched sweep data length, unknown account/asset/manager.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return e.Msg
}

func invariantf(format string, args ...interface{}) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// Hook names for HookError.
const (
	HookAsset   = "asset"
	HookManager = "manager"
)

// HookError wraps a rejection from an Asset or Manager capability. The
// capability's own error is surfaced unmodified via Unwrap.
type HookError struct {
	Hook string
	Addr Address
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %s rejected: %v", e.Hook, e.Addr, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
