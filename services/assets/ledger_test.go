package assets

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"crowdsale/native/crowdsale"
)

var (
	eos      = crowdsale.Unit{Code: "EOS", Decimals: 4}
	tkn      = crowdsale.Unit{Code: "TKN", Decimals: 4}
	contract = [20]byte{0x02}
	alice    = [20]byte{0xa1}
	bob      = [20]byte{0xb0}
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return NewLedger(db)
}

func requireBalance(t *testing.T, l *Ledger, account [20]byte, symbol string, want int64) {
	t.Helper()
	got, err := l.Balance(context.Background(), account, symbol)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("expected %s balance %d, got %s", symbol, want, got)
	}
}

func TestLedgerAppliesEffectsOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	if err := l.Credit(ctx, contract, crowdsale.NewQuantity(24_000_000, eos)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	refund := crowdsale.Effect{Key: "k1", Kind: crowdsale.EffectTransfer, From: contract, To: alice, Quantity: crowdsale.NewQuantity(2_000_000, eos), Memo: "refund"}
	applied, err := l.Apply(ctx, refund)
	if err != nil || !applied {
		t.Fatalf("apply: applied=%v err=%v", applied, err)
	}
	applied, err = l.Apply(ctx, refund)
	if err != nil || applied {
		t.Fatalf("replay must be a no-op: applied=%v err=%v", applied, err)
	}
	requireBalance(t, l, contract, "EOS", 22_000_000)
	requireBalance(t, l, alice, "EOS", 2_000_000)

	seen, err := l.Applied(ctx, "k1")
	if err != nil || !seen {
		t.Fatalf("expected k1 recorded, got %v err=%v", seen, err)
	}
}

func TestLedgerRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	effect := crowdsale.Effect{Key: "k1", Kind: crowdsale.EffectTransfer, From: contract, To: alice, Quantity: crowdsale.NewQuantity(1, eos)}
	if _, err := l.Apply(ctx, effect); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	seen, err := l.Applied(ctx, "k1")
	if err != nil || seen {
		t.Fatalf("failed effect must not be recorded, got %v err=%v", seen, err)
	}
	requireBalance(t, l, alice, "EOS", 0)
}

func TestLedgerLockAndUnlock(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	if err := l.RegisterSymbol(ctx, tkn, true); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := l.RegisterSymbol(ctx, tkn, false); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	locked, err := l.Locked(ctx, "TKN")
	if err != nil || !locked {
		t.Fatalf("re-registering must keep the lock, got %v err=%v", locked, err)
	}

	issue := crowdsale.Effect{Key: "i1", Kind: crowdsale.EffectIssue, From: contract, To: alice, Quantity: crowdsale.NewQuantity(500, tkn)}
	if _, err := l.Apply(ctx, issue); err != nil {
		t.Fatalf("issue while locked: %v", err)
	}
	if err := l.Transfer(ctx, alice, bob, crowdsale.NewQuantity(100, tkn)); !errors.Is(err, ErrSymbolLocked) {
		t.Fatalf("expected locked transfer to fail, got %v", err)
	}

	unlock := crowdsale.Effect{Key: "u1", Kind: crowdsale.EffectUnlock, From: contract, To: contract, Quantity: crowdsale.NewQuantity(0, tkn)}
	if _, err := l.Apply(ctx, unlock); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := l.Transfer(ctx, alice, bob, crowdsale.NewQuantity(100, tkn)); err != nil {
		t.Fatalf("transfer after unlock: %v", err)
	}
	requireBalance(t, l, alice, "TKN", 400)
	requireBalance(t, l, bob, "TKN", 100)
}

func TestLedgerUnknownEffect(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Apply(context.Background(), crowdsale.Effect{Key: "x", Kind: "burn", Quantity: crowdsale.NewQuantity(1, eos)})
	if !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("expected unknown effect, got %v", err)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://user@localhost/sale":       true,
		"host=localhost user=sale dbname=sale": true,
		"/var/lib/crowdsale/assets.db":         false,
		"file::memory:?cache=shared":           false,
	}
	for dsn, want := range cases {
		if got := isPostgresDSN(dsn); got != want {
			t.Fatalf("%s: expected %v, got %v", dsn, want, got)
		}
	}
}

func TestLedgerBooksDeposits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	dep := &crowdsale.Deposit{ID: 7, Investor: alice, Base: big.NewInt(30_000)}
	booking := crowdsale.DepositEffect(crowdsale.Params{Contract: contract, BaseUnit: eos}, dep)

	for i := 0; i < 2; i++ {
		if _, err := l.Apply(ctx, booking); err != nil {
			t.Fatalf("apply booking: %v", err)
		}
	}
	requireBalance(t, l, contract, "EOS", 30_000)
	requireBalance(t, l, alice, "EOS", 0)

	refund := crowdsale.Effect{Key: "r1", Kind: crowdsale.EffectTransfer, From: contract, To: alice, Quantity: crowdsale.NewQuantity(30_000, eos)}
	if _, err := l.Apply(ctx, refund); err != nil {
		t.Fatalf("refund from booked custody: %v", err)
	}
	requireBalance(t, l, contract, "EOS", 0)
	requireBalance(t, l, alice, "EOS", 30_000)
}
