package crowdsale

import (
	"errors"
	"math/big"
	"testing"
)

func TestMulDivUsesWideIntermediate(t *testing.T) {
	x := new(big.Int).Lsh(big.NewInt(1), 200)
	y := new(big.Int).Lsh(big.NewInt(1), 100)
	d := new(big.Int).Lsh(big.NewInt(1), 90)
	got, err := mulDiv(x, y, d)
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	want := new(big.Int).Lsh(big.NewInt(1), 210)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected 2^210, got %s", got)
	}

	if _, err := mulDiv(x, y, big.NewInt(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := mulDiv(x, y, big.NewInt(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := mulDiv(big.NewInt(-1), y, d); !errors.Is(err, ErrNegativeTotal) {
		t.Fatalf("expected negative rejection, got %v", err)
	}
}

func TestMulDivRoundsTowardZero(t *testing.T) {
	got, err := mulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3))
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	if got.Int64() != 3 {
		t.Fatalf("expected 3, got %s", got)
	}
}

func TestConversionsCheckUnits(t *testing.T) {
	amount := NewQuantity(25_000, eos)
	if _, err := toUSD(amount, NewQuantity(500, tkn), usd); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("expected unit mismatch, got %v", err)
	}
	value, err := toUSD(amount, NewQuantity(500, usd), usd)
	if err != nil {
		t.Fatalf("toUSD: %v", err)
	}
	if value.Amount.Int64() != 1_250 || value.Unit != usd {
		t.Fatalf("expected 12.50 USD, got %s", value)
	}
	units, err := toUnits(value, NewQuantity(100_000, tkn), tkn)
	if err != nil {
		t.Fatalf("toUnits: %v", err)
	}
	if units.String() != "125.0000 TKN" {
		t.Fatalf("unexpected units %s", units)
	}
}

func TestQuantityText(t *testing.T) {
	q, err := ParseQuantity("12.5000 eos")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Unit != eos || q.Amount.Int64() != 125_000 {
		t.Fatalf("unexpected quantity %+v", q)
	}
	if q.String() != "12.5000 EOS" {
		t.Fatalf("unexpected string %s", q)
	}
	if got := NewQuantity(5, usd).String(); got != "0.05 USD" {
		t.Fatalf("unexpected small amount rendering %s", got)
	}
	if _, err := ParseQuantity("12.5000"); err == nil {
		t.Fatalf("expected missing code to fail")
	}
	if _, err := ParseQuantity("1x.0 EOS"); err == nil {
		t.Fatalf("expected invalid amount to fail")
	}
}

func TestSettlementDust(t *testing.T) {
	sale := &Sale{Settling: true, SettledBase: big.NewInt(10), SettledUSD: big.NewInt(3)}
	dust, err := SettlementDust(sale, big.NewInt(2))
	if err != nil {
		t.Fatalf("dust: %v", err)
	}
	// share 10*2/3=6, pool 10*1/3=3
	if dust.Int64() != 1 {
		t.Fatalf("expected dust 1, got %s", dust)
	}

	sale.SettledUSD = big.NewInt(2)
	if dust, _ := SettlementDust(sale, big.NewInt(2)); dust.Sign() != 0 {
		t.Fatalf("undersubscribed sale has no dust, got %s", dust)
	}
	if dust, _ := SettlementDust(&Sale{}, big.NewInt(2)); dust.Sign() != 0 {
		t.Fatalf("unsettled sale has no dust, got %s", dust)
	}
}
