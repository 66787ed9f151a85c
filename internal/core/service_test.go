package core_test

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"MarginLedger/internal/capability"
	"MarginLedger/internal/core"
	"MarginLedger/internal/event"
	"MarginLedger/internal/ledger"
)

const (
	mgrAddr   = ledger.Address("manager:risk")
	usdAddr   = ledger.Address("asset:usd")
	aliceAddr = ledger.Address("user:alice")
	bobAddr   = ledger.Address("user:bob")
)

func newTestService(t *testing.T, persist, publish chan core.Output) *core.Service {
	t.Helper()
	l := ledger.New()
	if err := l.RegisterManager(mgrAddr, capability.NewRecordingManager()); err != nil {
		t.Fatal(err)
	}
	if err := l.RegisterAsset(usdAddr, capability.NewRecordingAsset()); err != nil {
		t.Fatal(err)
	}
	return core.NewService(l, 0, persist, publish, nil, zerolog.Nop())
}

func drain(ch chan core.Output) []core.Output {
	var out []core.Output
	for {
		select {
		case o := <-ch:
			out = append(out, o)
		default:
			return out
		}
	}
}

func TestService_SequencesAndChainsEvents(t *testing.T) {
	persist := make(chan core.Output, 64)
	svc := newTestService(t, persist, nil)

	a, err := svc.CreateAccount(aliceAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.CreateAccount(bobAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AdjustBalance(mgrAddr, ledger.Adjustment{
		Account: a, Asset: usdAddr, SubID: 0, Amount: 100,
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.SubmitTransfer(mgrAddr, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 30,
	}, nil); err != nil {
		t.Fatal(err)
	}

	outputs := drain(persist)
	// 2 creates + 1 adjustment + 2 transfer legs.
	if len(outputs) != 5 {
		t.Fatalf("persisted %d events, want 5", len(outputs))
	}

	genesis := core.NewStateHasher().GetPrevHash()
	for i, out := range outputs {
		env := out.Envelope
		if env.Sequence != int64(i) {
			t.Errorf("event %d carries sequence %d", i, env.Sequence)
		}
		if env.EventType != out.Event.EventType() {
			t.Errorf("event %d envelope type %s, payload type %s", i, env.EventType, out.Event.EventType())
		}
		if env.Account != out.Event.AccountID() {
			t.Errorf("event %d envelope account %d, payload account %d", i, env.Account, out.Event.AccountID())
		}

		want := genesis
		if i > 0 {
			want = outputs[i-1].Envelope.StateHash
		}
		if env.PrevHash != want {
			t.Errorf("event %d prev hash does not continue the chain", i)
		}
		if env.StateHash == env.PrevHash {
			t.Errorf("event %d state hash did not advance", i)
		}
	}

	// The chain value is reproducible from the persisted payloads.
	h := core.NewStateHasher()
	for _, out := range outputs {
		h.ComputeHash(out.Envelope.Sequence, out.Envelope.Payload)
	}
	if h.GetPrevHash() != svc.StateHash() {
		t.Error("recomputed chain tip differs from the service's")
	}

	if svc.Sequence() != 5 {
		t.Errorf("next sequence = %d, want 5", svc.Sequence())
	}

	// Payloads round-trip as the typed event.
	var adj event.BalanceAdjusted
	if err := json.Unmarshal(outputs[2].Envelope.Payload, &adj); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if adj.Post != 100 || adj.Account != uint64(a) {
		t.Errorf("payload = %+v, want post 100 on account %d", adj, a)
	}
}

func TestService_RejectedOpEmitsNothing(t *testing.T) {
	persist := make(chan core.Output, 16)
	svc := newTestService(t, persist, nil)

	a, err := svc.CreateAccount(aliceAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	drain(persist)
	seqBefore := svc.Sequence()
	hashBefore := svc.StateHash()

	// Self-transfer is rejected by the ledger.
	err = svc.SubmitTransfer(mgrAddr, ledger.Transfer{
		From: a, To: a, Asset: usdAddr, SubID: 0, Amount: 1,
	}, nil)
	if err == nil {
		t.Fatal("self-transfer succeeded")
	}

	if got := drain(persist); len(got) != 0 {
		t.Errorf("rejected op persisted %d events", len(got))
	}
	if svc.Sequence() != seqBefore {
		t.Errorf("rejected op advanced sequence to %d", svc.Sequence())
	}
	if svc.StateHash() != hashBefore {
		t.Error("rejected op moved the hash chain")
	}
}

func TestService_PublishDropDoesNotBlock(t *testing.T) {
	persist := make(chan core.Output, 16)
	// Full publish channel with no consumer: sends must drop, not stall.
	publish := make(chan core.Output)
	svc := newTestService(t, persist, publish)

	if _, err := svc.CreateAccount(aliceAddr, mgrAddr); err != nil {
		t.Fatal(err)
	}

	if got := drain(persist); len(got) != 1 {
		t.Fatalf("persisted %d events, want 1", len(got))
	}
}

func TestService_SnapshotRestoreReplayRoundtrip(t *testing.T) {
	persist := make(chan core.Output, 64)
	svc := newTestService(t, persist, nil)

	a, err := svc.CreateAccount(aliceAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.CreateAccount(bobAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AdjustBalance(mgrAddr, ledger.Adjustment{
		Account: a, Asset: usdAddr, SubID: 0, Amount: 100,
	}, nil); err != nil {
		t.Fatal(err)
	}

	// Snapshot mid-history, then keep going.
	snap := svc.CreateSnapshotState()
	if snap.Sequence != 3 {
		t.Fatalf("snapshot at sequence %d, want 3", snap.Sequence)
	}

	if err := svc.SubmitTransfer(mgrAddr, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 40,
	}, nil); err != nil {
		t.Fatal(err)
	}
	outputs := drain(persist)

	// Boot a second service from the snapshot and the tail of the log.
	restored := newTestService(t, nil, nil)
	restored.RestoreFromSnapshot(snap)
	if restored.Sequence() != snap.Sequence {
		t.Fatalf("restored sequence = %d, want %d", restored.Sequence(), snap.Sequence)
	}

	for _, out := range outputs {
		env := out.Envelope
		if env.Sequence < snap.Sequence {
			continue
		}
		err := restored.ReplayRow(env.Sequence, env.EventType.String(), env.Payload, env.StateHash[:])
		if err != nil {
			t.Fatalf("replay row %d: %v", env.Sequence, err)
		}
	}

	if restored.Sequence() != svc.Sequence() {
		t.Errorf("sequence = %d after replay, want %d", restored.Sequence(), svc.Sequence())
	}
	if restored.StateHash() != svc.StateHash() {
		t.Error("hash chain tip diverged after snapshot + replay")
	}
	for _, id := range []ledger.AccountID{a, b} {
		want, err := svc.GetBalance(id, usdAddr, 0)
		if err != nil {
			t.Fatal(err)
		}
		got, err := restored.GetBalance(id, usdAddr, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("account %d balance = %d after replay, want %d", id, got, want)
		}
	}
}

func TestService_ReplayRowRejectsGapsAndTampering(t *testing.T) {
	persist := make(chan core.Output, 16)
	svc := newTestService(t, persist, nil)
	if _, err := svc.CreateAccount(aliceAddr, mgrAddr); err != nil {
		t.Fatal(err)
	}
	out := drain(persist)[0]
	env := out.Envelope

	// Sequence gap.
	fresh := newTestService(t, nil, nil)
	if err := fresh.ReplayRow(env.Sequence+1, env.EventType.String(), env.Payload, nil); err == nil {
		t.Error("replay accepted a sequence gap")
	}

	// Tampered payload fails the stored-hash check.
	fresh = newTestService(t, nil, nil)
	tampered := []byte(`{"account":9,"owner":"user:mallory","manager":"manager:risk"}`)
	if err := fresh.ReplayRow(env.Sequence, env.EventType.String(), tampered, env.StateHash[:]); err == nil {
		t.Error("replay accepted a payload that breaks the hash chain")
	}
}
