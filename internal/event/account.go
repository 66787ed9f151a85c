package event

// AccountCreated is emitted when a fresh account id is allocated.
type AccountCreated struct {
	Account uint64 `json:"account"`
	Owner   string `json:"owner"`
	Manager string `json:"manager"`
}

func (e *AccountCreated) EventType() Type   { return TypeAccountCreated }
func (e *AccountCreated) AccountID() uint64 { return e.Account }

// AccountBurned is emitted when an account identity is destroyed.
// Ids are never reused.
type AccountBurned struct {
	Account uint64 `json:"account"`
	Owner   string `json:"owner"`
}

func (e *AccountBurned) EventType() Type   { return TypeAccountBurned }
func (e *AccountBurned) AccountID() uint64 { return e.Account }

// ManagerChanged is emitted after the new manager is installed.
type ManagerChanged struct {
	Account    uint64 `json:"account"`
	OldManager string `json:"old_manager"`
	NewManager string `json:"new_manager"`
}

func (e *ManagerChanged) EventType() Type   { return TypeManagerChanged }
func (e *ManagerChanged) AccountID() uint64 { return e.Account }

// DelegateSet is emitted when blanket delegated authority over an account
// is granted or revoked by the owner.
type DelegateSet struct {
	Account  uint64 `json:"account"`
	Delegate string `json:"delegate"`
	Enabled  bool   `json:"enabled"`
}

func (e *DelegateSet) EventType() Type   { return TypeDelegateSet }
func (e *DelegateSet) AccountID() uint64 { return e.Account }
