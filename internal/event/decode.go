package event

import (
	"encoding/json"
	"fmt"
)

// Decode parses a stored payload back into its typed event. The type name
// is the Envelope.EventType string as persisted in the event log.
func Decode(eventType string, payload []byte) (Event, error) {
	var ev Event
	switch eventType {
	case "AccountCreated":
		ev = &AccountCreated{}
	case "AccountBurned":
		ev = &AccountBurned{}
	case "ManagerChanged":
		ev = &ManagerChanged{}
	case "DelegateSet":
		ev = &DelegateSet{}
	case "AssetAllowanceSet":
		ev = &AssetAllowanceSet{}
	case "SubIDAllowanceSet":
		ev = &SubIDAllowanceSet{}
	case "AllowanceConsumed":
		ev = &AllowanceConsumed{}
	case "BalanceAdjusted":
		ev = &BalanceAdjusted{}
	case "AccountSwept":
		ev = &AccountSwept{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return ev, nil
}
