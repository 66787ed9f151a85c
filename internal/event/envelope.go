package event

import (
	"time"
)

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeAccountCreated
	TypeAccountBurned
	TypeManagerChanged
	TypeDelegateSet
	TypeAssetAllowanceSet
	TypeSubIDAllowanceSet
	TypeBalanceAdjusted
	TypeAccountSwept
	TypeAllowanceConsumed
)

// Envelope wraps every committed event in the log
type Envelope struct {
	// Global monotonic sequence assigned by the core
	Sequence int64

	// Event type discriminator
	EventType Type

	// Primary account context
	Account uint64

	// Commit timestamp assigned by the core
	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of the hash chain AFTER this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all ledger event payloads implement
type Event interface {
	// EventType returns the discriminator
	EventType() Type

	// AccountID returns the primary account this event concerns
	AccountID() uint64
}

func (t Type) String() string {
	switch t {
	case TypeAccountCreated:
		return "AccountCreated"
	case TypeAccountBurned:
		return "AccountBurned"
	case TypeManagerChanged:
		return "ManagerChanged"
	case TypeDelegateSet:
		return "DelegateSet"
	case TypeAssetAllowanceSet:
		return "AssetAllowanceSet"
	case TypeSubIDAllowanceSet:
		return "SubIDAllowanceSet"
	case TypeBalanceAdjusted:
		return "BalanceAdjusted"
	case TypeAccountSwept:
		return "AccountSwept"
	case TypeAllowanceConsumed:
		return "AllowanceConsumed"
	default:
		return "Unknown"
	}
}
