package query

import (
	"encoding/json"
	"time"
)

// BalanceResponse is one balance cell read from live state.
type BalanceResponse struct {
	Account      uint64 `json:"account"`
	Asset        string `json:"asset"`
	SubID        uint64 `json:"sub_id"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// PortfolioResponse is an account's held (non-zero) balances.
type PortfolioResponse struct {
	Account      uint64            `json:"account"`
	Balances     []BalanceResponse `json:"balances"`
	AsOfSequence int64             `json:"as_of_sequence"`
}

// AccountInfoResponse describes an account's identity wiring.
type AccountInfoResponse struct {
	Account      uint64 `json:"account"`
	Owner        string `json:"owner"`
	Manager      string `json:"manager"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// AllowanceResponse is the remaining allowance pair on one tier.
type AllowanceResponse struct {
	Account      uint64  `json:"account"`
	Delegate     string  `json:"delegate"`
	Asset        string  `json:"asset"`
	SubID        *uint64 `json:"sub_id,omitempty"` // nil for the asset-wide tier
	Positive     int64   `json:"positive"`
	Negative     int64   `json:"negative"`
	AsOfSequence int64   `json:"as_of_sequence"`
}

// EventResponse is one row from the durable event log.
type EventResponse struct {
	Sequence  int64           `json:"sequence"`
	EventType string          `json:"event_type"`
	Account   int64           `json:"account"`
	Payload   json.RawMessage `json:"payload"`
	StateHash []byte          `json:"state_hash"`
	Timestamp time.Time       `json:"timestamp"`
}

// AdjustmentResponse is one balance mutation from the audit trail.
type AdjustmentResponse struct {
	AdjustmentID string    `json:"adjustment_id"`
	Sequence     int64     `json:"sequence"`
	Account      int64     `json:"account"`
	Asset        string    `json:"asset"`
	SubID        int64     `json:"sub_id"`
	PreBalance   int64     `json:"pre_balance"`
	PostBalance  int64     `json:"post_balance"`
	Caller       string    `json:"caller"`
	Manager      string    `json:"manager"`
	Timestamp    time.Time `json:"timestamp"`
}

// IntegrityReport is the result of a hash-chain verification sweep.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	LastSequence    int64   `json:"last_sequence"`
}
