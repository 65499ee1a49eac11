package main

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"crowdsale/core"
	"crowdsale/native/crowdsale"
	"crowdsale/services/dispatch"
	"crowdsale/storage"
)

var (
	testIssuer   = [20]byte{0x01}
	testContract = [20]byte{0x02}
	testNotifier = [20]byte{0x03}
	testTeam     = [20]byte{0x04}
	testAlice    = [20]byte{0xa1}
	testCarol    = [20]byte{0xc0}

	testEOS = crowdsale.Unit{Code: "EOS", Decimals: 4}
	testETH = crowdsale.Unit{Code: "ETH", Decimals: 4}
	testUSD = crowdsale.Unit{Code: "USD", Decimals: 2}
	testTKN = crowdsale.Unit{Code: "TKN", Decimals: 4}
)

func testParams() crowdsale.Params {
	return crowdsale.Params{
		Issuer:        testIssuer,
		Contract:      testContract,
		Notifier:      testNotifier,
		BaseUnit:      testEOS,
		SecondaryUnit: testETH,
		USDUnit:       testUSD,
		SaleUnit:      testTKN,
		Cap:           big.NewInt(1_000_000),
		MinContrib:    big.NewInt(10_000),
		Allocations:   []crowdsale.Allocation{{To: testTeam, Amount: big.NewInt(50_000_000)}},
	}
}

func testRates() crowdsale.Rates {
	return crowdsale.Rates{
		BaseUSD:         crowdsale.NewQuantity(500, testUSD),
		SecondaryUSD:    crowdsale.NewQuantity(200_000, testUSD),
		SecondaryRaised: crowdsale.NewQuantity(0, testETH),
		UnitsPerUSD:     crowdsale.NewQuantity(100_000, testTKN),
	}
}

// The daemon wiring must leave every settlement effect deliverable: deposits
// reach contract custody before refunds and proceeds leave it.
func TestDaemonSettlementDrainsOutbox(t *testing.T) {
	ctx := context.Background()
	params := testParams()
	ledger, err := openLedger(ctx, filepath.Join(t.TempDir(), "assets.db"), params)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	clock := int64(1100)
	node, err := core.NewNode(storage.NewMemDB(), params,
		core.WithClock(func() int64 { return clock }),
		core.WithCustodyBooking(),
	)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	defer node.Close()
	dispatcher, err := dispatch.New(node, ledger, time.Second)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	issuer := crowdsale.Principal{Account: testIssuer}
	notifier := crowdsale.Principal{Account: testNotifier}
	if _, err := node.Init(ctx, issuer, 1000, 2000); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := node.SetDaily(ctx, issuer, testRates(), 100*time.Second); err != nil {
		t.Fatalf("setdaily: %v", err)
	}
	if err := node.ChangeList(ctx, issuer, crowdsale.ListWhite, true, [][20]byte{testAlice}); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := node.OnDeposit(ctx, notifier, testAlice, crowdsale.NewQuantity(12_000_000, testEOS)); err != nil {
		t.Fatalf("eligible deposit: %v", err)
	}
	if _, err := node.OnDeposit(ctx, notifier, testCarol, crowdsale.NewQuantity(20_000, testEOS)); err != nil {
		t.Fatalf("ineligible deposit: %v", err)
	}
	if _, err := dispatcher.Tick(ctx); err != nil {
		t.Fatalf("tick after deposits: %v", err)
	}
	custody, err := ledger.Balance(ctx, testContract, testEOS.Code)
	if err != nil || custody.Int64() != 12_020_000 {
		t.Fatalf("expected both deposits in custody, got %v err=%v", custody, err)
	}

	clock = 2100
	if err := node.SetDaily(ctx, issuer, testRates(), 100*time.Second); err != nil {
		t.Fatalf("closing setdaily: %v", err)
	}
	if _, err := node.Refund(ctx, crowdsale.Principal{Account: testCarol}, testCarol); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := node.Withdraw(ctx, crowdsale.Principal{Account: testAlice}, testAlice); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := node.Finalize(ctx, issuer); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := dispatcher.Tick(ctx); err != nil {
		t.Fatalf("tick after settlement: %v", err)
	}

	pending, err := node.PendingEffects(0)
	if err != nil || len(pending) != 0 {
		t.Fatalf("outbox must drain, pending=%+v err=%v", pending, err)
	}
	refunded, err := ledger.Balance(ctx, testCarol, testEOS.Code)
	if err != nil || refunded.Int64() != 20_000 {
		t.Fatalf("expected carol refunded 20000, got %v err=%v", refunded, err)
	}
	units, err := ledger.Balance(ctx, testAlice, testTKN.Code)
	if err != nil || units.Sign() <= 0 {
		t.Fatalf("expected alice to hold sale units, got %v err=%v", units, err)
	}
	remaining, err := ledger.Balance(ctx, testContract, testEOS.Code)
	if err != nil {
		t.Fatalf("contract balance: %v", err)
	}
	proceeds, err := ledger.Balance(ctx, testIssuer, testEOS.Code)
	if err != nil {
		t.Fatalf("issuer balance: %v", err)
	}
	if total := new(big.Int).Add(remaining, proceeds); total.Int64() != 12_000_000 {
		t.Fatalf("eligible contributions must stay with contract or issuer, got %s", total)
	}
}
