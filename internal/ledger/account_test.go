package ledger_test

import (
	"errors"
	"fmt"
	"testing"

	"MarginLedger/internal/capability"
	"MarginLedger/internal/ledger"
)

const (
	mgrAddr   = ledger.Address("manager:risk")
	mgr2Addr  = ledger.Address("manager:risk2")
	usdAddr   = ledger.Address("asset:usd")
	eurAddr   = ledger.Address("asset:eur")
	aliceAddr = ledger.Address("user:alice")
	bobAddr   = ledger.Address("user:bob")
	carolAddr = ledger.Address("user:carol")
)

// newTestLedger builds a ledger with recording capability doubles: one
// manager under mgrAddr and one pass-through asset under usdAddr.
func newTestLedger(t *testing.T) (*ledger.Ledger, *capability.RecordingManager, *capability.RecordingAsset) {
	t.Helper()
	l := ledger.New()
	mgr := capability.NewRecordingManager()
	asset := capability.NewRecordingAsset()
	if err := l.RegisterManager(mgrAddr, mgr); err != nil {
		t.Fatalf("register manager: %v", err)
	}
	if err := l.RegisterAsset(usdAddr, asset); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	return l, mgr, asset
}

func mustCreate(t *testing.T, l *ledger.Ledger, owner ledger.Address) ledger.AccountID {
	t.Helper()
	id, err := l.CreateAccount(owner, mgrAddr)
	if err != nil {
		t.Fatalf("create account for %s: %v", owner, err)
	}
	return id
}

// fund credits an account directly through its manager, bypassing the
// allowance book.
func fund(t *testing.T, l *ledger.Ledger, id ledger.AccountID, asset ledger.Address, subID ledger.SubID, amount int64) {
	t.Helper()
	if _, err := l.AdjustBalance(mgrAddr, ledger.Adjustment{
		Account: id,
		Asset:   asset,
		SubID:   subID,
		Amount:  amount,
	}, nil); err != nil {
		t.Fatalf("fund account %d: %v", id, err)
	}
}

func TestCreateAccount_MonotonicIDs(t *testing.T) {
	l, _, _ := newTestLedger(t)

	a := mustCreate(t, l, aliceAddr)
	b := mustCreate(t, l, bobAddr)
	if b <= a {
		t.Errorf("ids not monotonic: %d then %d", a, b)
	}

	owner, err := l.AccountOwner(a)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != aliceAddr {
		t.Errorf("owner = %s, want %s", owner, aliceAddr)
	}

	manager, err := l.AccountManager(a)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if manager != mgrAddr {
		t.Errorf("manager = %s, want %s", manager, mgrAddr)
	}
}

func TestCreateAccount_UnregisteredManager(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.CreateAccount(aliceAddr, ledger.Address("manager:ghost"))
	var invErr *ledger.InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
}

func TestBurnAccount_IDNeverReused(t *testing.T) {
	l, _, _ := newTestLedger(t)

	a := mustCreate(t, l, aliceAddr)
	if err := l.BurnAccount(aliceAddr, a); err != nil {
		t.Fatalf("burn: %v", err)
	}

	b := mustCreate(t, l, bobAddr)
	if b == a {
		t.Errorf("burned id %d was reused", a)
	}

	if _, err := l.AccountOwner(a); err == nil {
		t.Error("burned account still resolves")
	}
}

func TestBurnAccount_OnlyOwnerOrDelegate(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)

	// The assigned manager holds blanket authority elsewhere, but burning
	// is reserved for the owner and blanket delegates.
	err := l.BurnAccount(mgrAddr, a)
	var authErr *ledger.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("manager burn: expected AuthorizationError, got %v", err)
	}

	if err := l.SetDelegate(aliceAddr, a, bobAddr, true); err != nil {
		t.Fatalf("set delegate: %v", err)
	}
	if err := l.BurnAccount(bobAddr, a); err != nil {
		t.Fatalf("delegate burn: %v", err)
	}
}

func TestBurnAccount_BlockedWhileHoldingAssets(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)
	fund(t, l, a, usdAddr, 0, 100)

	err := l.BurnAccount(aliceAddr, a)
	var invErr *ledger.InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvariantError, got %v", err)
	}

	// Zero it out, then burning succeeds.
	fund(t, l, a, usdAddr, 0, -100)
	if err := l.BurnAccount(aliceAddr, a); err != nil {
		t.Fatalf("burn after zeroing: %v", err)
	}
}

func TestSetDelegate_OwnerOnly(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)

	var authErr *ledger.AuthorizationError
	if err := l.SetDelegate(bobAddr, a, carolAddr, true); !errors.As(err, &authErr) {
		t.Fatalf("non-owner grant: expected AuthorizationError, got %v", err)
	}
	if err := l.SetDelegate(mgrAddr, a, carolAddr, true); !errors.As(err, &authErr) {
		t.Fatalf("manager grant: expected AuthorizationError, got %v", err)
	}

	if err := l.SetDelegate(aliceAddr, a, bobAddr, true); err != nil {
		t.Fatalf("owner grant: %v", err)
	}
	isDel, err := l.IsDelegate(a, bobAddr)
	if err != nil || !isDel {
		t.Fatalf("IsDelegate = %v, %v; want true", isDel, err)
	}

	if err := l.SetDelegate(aliceAddr, a, bobAddr, false); err != nil {
		t.Fatalf("owner revoke: %v", err)
	}
	isDel, _ = l.IsDelegate(a, bobAddr)
	if isDel {
		t.Error("delegate still set after revoke")
	}
}

func TestChangeManager_RejectsSameManager(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)

	err := l.ChangeManager(aliceAddr, a, mgrAddr, nil)
	var invErr *ledger.InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
}

func TestChangeManager_OldManagerVeto(t *testing.T) {
	l, mgr, _ := newTestLedger(t)
	mgr2 := capability.NewRecordingManager()
	if err := l.RegisterManager(mgr2Addr, mgr2); err != nil {
		t.Fatalf("register manager2: %v", err)
	}

	a := mustCreate(t, l, aliceAddr)

	mgr.RejectChange = fmt.Errorf("still carrying open risk")
	err := l.ChangeManager(aliceAddr, a, mgr2Addr, nil)
	var hookErr *ledger.HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("expected HookError, got %v", err)
	}
	if hookErr.Hook != ledger.HookManager || hookErr.Addr != mgrAddr {
		t.Errorf("hook error names %s/%s, want %s/%s", hookErr.Hook, hookErr.Addr, ledger.HookManager, mgrAddr)
	}

	// Veto leaves the assignment untouched.
	manager, _ := l.AccountManager(a)
	if manager != mgrAddr {
		t.Errorf("manager = %s after veto, want %s", manager, mgrAddr)
	}
}

func TestChangeManager_NotifiesAssetsOncePerAsset(t *testing.T) {
	l, _, asset := newTestLedger(t)
	mgr2 := capability.NewRecordingManager()
	if err := l.RegisterManager(mgr2Addr, mgr2); err != nil {
		t.Fatalf("register manager2: %v", err)
	}

	a := mustCreate(t, l, aliceAddr)
	// Two sub-instruments of the same asset: the asset hears about the
	// change once, not twice.
	fund(t, l, a, usdAddr, 1, 10)
	fund(t, l, a, usdAddr, 2, 20)

	if err := l.ChangeManager(aliceAddr, a, mgr2Addr, []byte("handoff")); err != nil {
		t.Fatalf("change manager: %v", err)
	}

	if len(asset.ManagerChanges) != 1 {
		t.Fatalf("asset notified %d times, want 1", len(asset.ManagerChanges))
	}
	ch := asset.ManagerChanges[0]
	if ch.OldManager != mgrAddr || ch.NewManager != mgr2Addr {
		t.Errorf("asset saw %s -> %s, want %s -> %s", ch.OldManager, ch.NewManager, mgrAddr, mgr2Addr)
	}

	// New manager validated the portfolio.
	if len(mgr2.Adjustments) != 1 {
		t.Fatalf("new manager hook ran %d times, want 1", len(mgr2.Adjustments))
	}
	if len(mgr2.Adjustments[0].Balances) != 2 {
		t.Errorf("new manager saw %d balances, want 2", len(mgr2.Adjustments[0].Balances))
	}

	manager, _ := l.AccountManager(a)
	if manager != mgr2Addr {
		t.Errorf("manager = %s, want %s", manager, mgr2Addr)
	}
}

func TestChangeManager_NewManagerRejectionRollsBack(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mgr2 := capability.NewRecordingManager()
	mgr2.RejectAdjustment = fmt.Errorf("portfolio too large")
	if err := l.RegisterManager(mgr2Addr, mgr2); err != nil {
		t.Fatalf("register manager2: %v", err)
	}

	a := mustCreate(t, l, aliceAddr)
	fund(t, l, a, usdAddr, 0, 50)

	err := l.ChangeManager(aliceAddr, a, mgr2Addr, nil)
	var hookErr *ledger.HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("expected HookError, got %v", err)
	}

	manager, _ := l.AccountManager(a)
	if manager != mgrAddr {
		t.Errorf("manager = %s after rejected takeover, want %s", manager, mgrAddr)
	}
}
