package ledger_test

import (
	"errors"
	"testing"

	"MarginLedger/internal/ledger"
)

const trader = ledger.Address("svc:trader")

// grantAllowances gives trader a sub-scoped pair on (usd, sub 0) and an
// asset-wide pair on usd for the given account.
func grantAllowances(t *testing.T, l *ledger.Ledger, owner ledger.Address, id ledger.AccountID,
	subPos, subNeg, widePos, wideNeg int64) {
	t.Helper()
	err := l.SetSubIDAllowances(owner, id, trader, []ledger.SubIDAllowance{
		{Asset: usdAddr, SubID: 0, Positive: subPos, Negative: subNeg},
	})
	if err != nil {
		t.Fatalf("set sub allowances: %v", err)
	}
	err = l.SetAssetAllowances(owner, id, trader, []ledger.AssetAllowance{
		{Asset: usdAddr, Positive: widePos, Negative: wideNeg},
	})
	if err != nil {
		t.Fatalf("set asset allowances: %v", err)
	}
}

func TestSetAllowances_RejectNegative(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)

	var invErr *ledger.InvariantError
	err := l.SetAssetAllowances(aliceAddr, a, trader, []ledger.AssetAllowance{
		{Asset: usdAddr, Positive: -1, Negative: 0},
	})
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvariantError, got %v", err)
	}

	err = l.SetSubIDAllowances(aliceAddr, a, trader, []ledger.SubIDAllowance{
		{Asset: usdAddr, SubID: 0, Positive: 0, Negative: -5},
	})
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
}

func TestSetAllowances_OverwriteNotAccumulate(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)

	for _, positive := range []int64{100, 40} {
		err := l.SetAssetAllowances(aliceAddr, a, trader, []ledger.AssetAllowance{
			{Asset: usdAddr, Positive: positive, Negative: 7},
		})
		if err != nil {
			t.Fatalf("set allowances: %v", err)
		}
	}

	pos, neg, err := l.AssetAllowanceOf(a, trader, usdAddr)
	if err != nil {
		t.Fatalf("read allowance: %v", err)
	}
	if pos != 40 || neg != 7 {
		t.Errorf("allowance = (%d, %d), want (40, 7)", pos, neg)
	}
}

func TestAllowance_SubTierConsumedFirst(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)
	b := mustCreate(t, l, bobAddr)
	fund(t, l, a, usdAddr, 0, 100)

	// Receive side: 5 sub-scoped + 3 asset-wide on bob's account.
	grantAllowances(t, l, bobAddr, b, 5, 0, 3, 0)
	// Send side: plenty of negative allowance on alice's account.
	grantAllowances(t, l, aliceAddr, a, 0, 100, 0, 0)

	// 7 needed: 5 drawn from the sub tier, 2 from the asset-wide tier.
	err := l.SubmitTransfer(trader, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 7,
	}, nil)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	subPos, _, _ := l.SubIDAllowanceOf(b, trader, usdAddr, 0)
	widePos, _, _ := l.AssetAllowanceOf(b, trader, usdAddr)
	if subPos != 0 || widePos != 1 {
		t.Errorf("remaining = (sub %d, wide %d), want (0, 1)", subPos, widePos)
	}

	// 2 more exceeds the combined remainder of 1.
	err = l.SubmitTransfer(trader, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 2,
	}, nil)
	var allowErr *ledger.AllowanceError
	if !errors.As(err, &allowErr) {
		t.Fatalf("expected AllowanceError, got %v", err)
	}
	if allowErr.Requested != 2 || allowErr.SubRemaining != 0 || allowErr.AssetRemaining != 1 {
		t.Errorf("AllowanceError = requested %d, sub %d, wide %d; want 2, 0, 1",
			allowErr.Requested, allowErr.SubRemaining, allowErr.AssetRemaining)
	}

	// The failed transfer consumed nothing.
	widePos, _, _ = l.AssetAllowanceOf(b, trader, usdAddr)
	if widePos != 1 {
		t.Errorf("failed transfer consumed allowance: wide = %d, want 1", widePos)
	}
}

func TestAllowance_DirectionsIndependent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)
	b := mustCreate(t, l, bobAddr)
	fund(t, l, a, usdAddr, 0, 100)

	// Only positive (receive) allowance on both sides: the debit leg on
	// alice needs negative allowance and must fail.
	grantAllowances(t, l, aliceAddr, a, 0, 0, 50, 0)
	grantAllowances(t, l, bobAddr, b, 0, 0, 50, 0)

	err := l.SubmitTransfer(trader, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 10,
	}, nil)
	var allowErr *ledger.AllowanceError
	if !errors.As(err, &allowErr) {
		t.Fatalf("expected AllowanceError for missing negative allowance, got %v", err)
	}
	if allowErr.Account != a {
		t.Errorf("error names account %d, want debit account %d", allowErr.Account, a)
	}
}

func TestAllowance_BlanketAuthorityShortCircuits(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)
	b := mustCreate(t, l, bobAddr)
	fund(t, l, a, usdAddr, 0, 100)

	// Bob grants alice blanket delegation; alice needs no allowance on
	// either side because she owns the debit account.
	if err := l.SetDelegate(bobAddr, b, aliceAddr, true); err != nil {
		t.Fatalf("set delegate: %v", err)
	}

	// Give alice a tiny allowance on her own account to prove it is NOT
	// consumed when blanket authority applies.
	grantAllowances(t, l, aliceAddr, a, 0, 0, 1, 1)
	if err := l.SetAssetAllowances(bobAddr, b, aliceAddr, []ledger.AssetAllowance{
		{Asset: usdAddr, Positive: 1, Negative: 1},
	}); err != nil {
		t.Fatalf("set allowances on b: %v", err)
	}

	err := l.SubmitTransfer(aliceAddr, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 50,
	}, nil)
	if err != nil {
		t.Fatalf("transfer with blanket authority: %v", err)
	}

	pos, neg, _ := l.AssetAllowanceOf(b, aliceAddr, usdAddr)
	if pos != 1 || neg != 1 {
		t.Errorf("blanket-authorized transfer consumed allowance: (%d, %d), want (1, 1)", pos, neg)
	}
}

func TestAllowance_ZeroAmountConsumesNothing(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)
	b := mustCreate(t, l, bobAddr)

	// No allowances at all: a zero-amount transfer still succeeds.
	err := l.SubmitTransfer(trader, ledger.Transfer{
		From: a, To: b, Asset: usdAddr, SubID: 0, Amount: 0,
	}, nil)
	if err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
}

func TestSetAllowances_RequiresBlanketAuthority(t *testing.T) {
	l, _, _ := newTestLedger(t)
	a := mustCreate(t, l, aliceAddr)

	var authErr *ledger.AuthorizationError
	err := l.SetAssetAllowances(bobAddr, a, trader, []ledger.AssetAllowance{
		{Asset: usdAddr, Positive: 10, Negative: 10},
	})
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	// The assigned manager may write allowances.
	err = l.SetAssetAllowances(mgrAddr, a, trader, []ledger.AssetAllowance{
		{Asset: usdAddr, Positive: 10, Negative: 10},
	})
	if err != nil {
		t.Fatalf("manager-set allowances: %v", err)
	}
}
