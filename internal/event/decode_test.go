package event_test

import (
	"encoding/json"
	"testing"

	"MarginLedger/internal/event"
)

func TestDecode_RoundTripsTypedPayload(t *testing.T) {
	orig := &event.BalanceAdjusted{
		Account: 7,
		Manager: "manager:risk",
		Asset:   "asset:usd",
		SubID:   3,
		Pre:     100,
		Post:    60,
		Caller:  "svc:trader",
	}
	payload, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := event.Decode(orig.EventType().String(), payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(*event.BalanceAdjusted)
	if !ok {
		t.Fatalf("decoded to %T", decoded)
	}
	if *got != *orig {
		t.Errorf("decoded %+v, want %+v", got, orig)
	}
}

func TestDecode_EveryTypeNameResolves(t *testing.T) {
	// Every discriminator with a String name must decode; the log stores
	// that name and boot replay depends on the mapping being total.
	for ty := event.TypeAccountCreated; ty <= event.TypeAllowanceConsumed; ty++ {
		ev, err := event.Decode(ty.String(), []byte("{}"))
		if err != nil {
			t.Errorf("decode %s: %v", ty, err)
			continue
		}
		if ev.EventType() != ty {
			t.Errorf("decode %s produced type %s", ty, ev.EventType())
		}
	}
}

func TestDecode_UnknownTypeFails(t *testing.T) {
	if _, err := event.Decode("PositionLiquidated", []byte("{}")); err == nil {
		t.Error("unknown type decoded")
	}
	if _, err := event.Decode("BalanceAdjusted", []byte("not json")); err == nil {
		t.Error("malformed payload decoded")
	}
}
