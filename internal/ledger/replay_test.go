package ledger_test

import (
	"reflect"
	"testing"

	"MarginLedger/internal/capability"
	"MarginLedger/internal/event"
	"MarginLedger/internal/ledger"
)

// newReplayLedger registers the same capability set on every ledger so a
// replayed copy resolves identical addresses.
func newReplayLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	if err := l.RegisterManager(mgrAddr, capability.NewRecordingManager()); err != nil {
		t.Fatal(err)
	}
	if err := l.RegisterManager(mgr2Addr, capability.NewRecordingManager()); err != nil {
		t.Fatal(err)
	}
	if err := l.RegisterAsset(usdAddr, capability.NewRecordingAsset()); err != nil {
		t.Fatal(err)
	}
	if err := l.RegisterAsset(eurAddr, &mirrorAsset{}); err != nil {
		t.Fatal(err)
	}
	return l
}

// canonicalize zeroes the cached index order of zero-balance entries. A
// bulk sweep resets those orders in one pass while per-event replay removes
// entries one at a time; the leftover orders are never trusted, so state
// comparison ignores them.
func canonicalize(s *ledger.Snapshot) {
	for i := range s.Accounts {
		for j := range s.Accounts[i].Balances {
			if s.Accounts[i].Balances[j].Balance == 0 {
				s.Accounts[i].Balances[j].Order = 0
			}
		}
	}
}

func TestReplay_RebuildsIdenticalState(t *testing.T) {
	src := newReplayLedger(t)
	var log []event.Event
	src.SetEventSink(func(ev event.Event) { log = append(log, ev) })

	a, err := src.CreateAccount(aliceAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	b, err := src.CreateAccount(bobAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	c, err := src.CreateAccount(carolAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}

	fund(t, src, a, usdAddr, 0, 100)
	fund(t, src, a, eurAddr, 2, 40)
	fund(t, src, b, usdAddr, 0, 10)

	// A cell that crosses zero and leaves the index, so replay has to
	// handle a stale materialized entry.
	fund(t, src, a, usdAddr, 5, 7)
	fund(t, src, a, usdAddr, 5, -7)

	if err := src.SetDelegate(aliceAddr, a, carolAddr, true); err != nil {
		t.Fatal(err)
	}
	if err := src.SetDelegate(bobAddr, b, aliceAddr, true); err != nil {
		t.Fatal(err)
	}
	if err := src.SetDelegate(bobAddr, b, aliceAddr, false); err != nil {
		t.Fatal(err)
	}

	err = src.SetSubIDAllowances(aliceAddr, a, trader, []ledger.SubIDAllowance{
		{Asset: usdAddr, SubID: 0, Positive: 0, Negative: 30},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = src.SetAssetAllowances(aliceAddr, a, trader, []ledger.AssetAllowance{
		{Asset: usdAddr, Positive: 0, Negative: 50},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = src.SetAssetAllowances(bobAddr, b, trader, []ledger.AssetAllowance{
		{Asset: usdAddr, Positive: 100, Negative: 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Delegated transfer draining both tiers on the debit side, so the
	// allowance-consumption event is part of the log.
	err = src.SubmitTransfer(trader, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 40,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// A rejected operation must contribute nothing to the log.
	logLen := len(log)
	err = src.SubmitTransfer(trader, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 1000,
	}, nil)
	if err == nil {
		t.Fatal("oversized delegated transfer succeeded")
	}
	if len(log) != logLen {
		t.Fatalf("rejected operation emitted %d events", len(log)-logLen)
	}

	if err := src.ChangeManager(bobAddr, b, mgr2Addr, nil); err != nil {
		t.Fatal(err)
	}

	// Sweep and burn: carol is a blanket delegate on a and owns c.
	if err := src.TransferAll(carolAddr, a, c, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := src.BurnAccount(aliceAddr, a); err != nil {
		t.Fatal(err)
	}

	dst := newReplayLedger(t)
	for i, ev := range log {
		if err := dst.Replay(ev); err != nil {
			t.Fatalf("replay event %d (%s): %v", i, ev.EventType(), err)
		}
	}

	want := src.Snapshot()
	got := dst.Snapshot()
	canonicalize(want)
	canonicalize(got)
	if !reflect.DeepEqual(want, got) {
		t.Errorf("replayed state diverged\n got: %+v\nwant: %+v", got, want)
	}

	// Replayed ledger answers queries like the original.
	balC, err := dst.GetBalance(c, usdAddr, 0)
	if err != nil {
		t.Fatal(err)
	}
	if balC != 60 {
		t.Errorf("replayed balance = %d, want 60", balC)
	}
	subPos, subNeg, err := dst.SubIDAllowanceOf(b, trader, usdAddr, 0)
	if err != nil {
		t.Fatal(err)
	}
	if subPos != 0 || subNeg != 0 {
		t.Errorf("replayed sub allowance = (%d, %d), want (0, 0)", subPos, subNeg)
	}
	widePos, _, err := dst.AssetAllowanceOf(b, trader, usdAddr)
	if err != nil {
		t.Fatal(err)
	}
	if widePos != 60 {
		t.Errorf("replayed wide allowance = %d, want 60", widePos)
	}
}

func TestReplay_AllowanceConsumptionExact(t *testing.T) {
	src := newReplayLedger(t)
	var log []event.Event
	src.SetEventSink(func(ev event.Event) { log = append(log, ev) })

	a, err := src.CreateAccount(aliceAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	b, err := src.CreateAccount(bobAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	fund(t, src, a, usdAddr, 0, 100)
	grantAllowances(t, src, aliceAddr, a, 0, 5, 0, 10)
	grantAllowances(t, src, bobAddr, b, 8, 0, 0, 0)

	// Draw 8 on the debit side: 5 from the sub tier, 3 asset-wide. The
	// credit side drains its sub tier exactly.
	err = src.SubmitTransfer(trader, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 8,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	dst := newReplayLedger(t)
	for i, ev := range log {
		if err := dst.Replay(ev); err != nil {
			t.Fatalf("replay event %d (%s): %v", i, ev.EventType(), err)
		}
	}

	_, subNeg, err := dst.SubIDAllowanceOf(a, trader, usdAddr, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, wideNeg, err := dst.AssetAllowanceOf(a, trader, usdAddr)
	if err != nil {
		t.Fatal(err)
	}
	if subNeg != 0 || wideNeg != 7 {
		t.Errorf("replayed debit allowances = (sub %d, wide %d), want (0, 7)", subNeg, wideNeg)
	}
}

func TestReplay_RejectsMismatchedPreBalance(t *testing.T) {
	l := newReplayLedger(t)
	a, err := l.CreateAccount(aliceAddr, mgrAddr)
	if err != nil {
		t.Fatal(err)
	}
	fund(t, l, a, usdAddr, 0, 100)

	// An event recorded against different history must not apply.
	err = l.Replay(&event.BalanceAdjusted{
		Account: uint64(a),
		Manager: string(mgrAddr),
		Asset:   string(usdAddr),
		SubID:   0,
		Pre:     55,
		Post:    60,
		Caller:  string(mgrAddr),
	})
	if err == nil {
		t.Fatal("replay accepted an event with a stale pre-balance")
	}

	bal, _ := l.GetBalance(a, usdAddr, 0)
	if bal != 100 {
		t.Errorf("failed replay mutated balance to %d", bal)
	}
}

func TestReplay_UnknownAccountFails(t *testing.T) {
	l := newReplayLedger(t)
	err := l.Replay(&event.AccountBurned{Account: 42})
	if err == nil {
		t.Fatal("replay burned a nonexistent account")
	}
}
