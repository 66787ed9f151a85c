package event

// BalanceAdjusted is emitted for every balance mutation, one per leg.
// Pre and Post are the balances before and after the asset hook's
// authoritative result was written.
type BalanceAdjusted struct {
	Account uint64 `json:"account"`
	Manager string `json:"manager"`
	Asset   string `json:"asset"`
	SubID   uint64 `json:"sub_id"`
	Pre     int64  `json:"pre"`
	Post    int64  `json:"post"`
	Caller  string `json:"caller"`
}

func (e *BalanceAdjusted) EventType() Type   { return TypeBalanceAdjusted }
func (e *BalanceAdjusted) AccountID() uint64 { return e.Account }

// AccountSwept is emitted once per TransferAll, after the per-entry
// BalanceAdjusted events for both sides.
type AccountSwept struct {
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	Entries int    `json:"entries"`
}

func (e *AccountSwept) EventType() Type   { return TypeAccountSwept }
func (e *AccountSwept) AccountID() uint64 { return e.From }
