package crowdsale

import (
	"fmt"
	"math/big"
	"strings"
)

// Unit tags a fixed-point amount with its currency code and precision.
type Unit struct {
	Code     string `json:"code"`
	Decimals uint8  `json:"decimals"`
}

// String renders the unit as "<decimals>,<code>".
func (u Unit) String() string {
	return fmt.Sprintf("%d,%s", u.Decimals, u.Code)
}

// IsZero reports whether the unit is unset.
func (u Unit) IsZero() bool {
	return strings.TrimSpace(u.Code) == "" && u.Decimals == 0
}

// Scale returns 10^Decimals.
func (u Unit) Scale() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(u.Decimals)), nil)
}

// Quantity is a fixed-point integer amount carrying its unit tag.
type Quantity struct {
	Amount *big.Int `json:"amount"`
	Unit   Unit     `json:"unit"`
}

// NewQuantity builds a quantity from an int64 amount.
func NewQuantity(amount int64, unit Unit) Quantity {
	return Quantity{Amount: big.NewInt(amount), Unit: unit}
}

// Clone returns a deep copy of the quantity.
func (q Quantity) Clone() Quantity {
	return Quantity{Amount: newBigInt(q.Amount), Unit: q.Unit}
}

// Sign returns the sign of the amount, treating nil as zero.
func (q Quantity) Sign() int {
	if q.Amount == nil {
		return 0
	}
	return q.Amount.Sign()
}

// String renders the quantity as "<amount with decimals> <code>", e.g.
// "12.5000 EOS".
func (q Quantity) String() string {
	amount := newBigInt(q.Amount)
	negative := amount.Sign() < 0
	if negative {
		amount.Neg(amount)
	}
	digits := amount.String()
	decimals := int(q.Unit.Decimals)
	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-decimals] + "." + digits[len(digits)-decimals:]
	}
	if negative {
		digits = "-" + digits
	}
	if q.Unit.Code == "" {
		return digits
	}
	return digits + " " + q.Unit.Code
}

// ParseQuantity parses the String form of a quantity. The number of digits
// after the decimal point determines the unit precision, so "1.0000 EOS"
// yields Unit{Code: "EOS", Decimals: 4} and an amount of 10000.
func ParseQuantity(raw string) (Quantity, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) != 2 {
		return Quantity{}, fmt.Errorf("crowdsale: quantity %q must be \"<amount> <code>\"", raw)
	}
	number, code := fields[0], strings.ToUpper(fields[1])
	decimals := 0
	if idx := strings.IndexByte(number, '.'); idx >= 0 {
		decimals = len(number) - idx - 1
		number = number[:idx] + number[idx+1:]
	}
	if decimals > 18 {
		return Quantity{}, fmt.Errorf("crowdsale: quantity %q has too many decimals", raw)
	}
	amount, ok := new(big.Int).SetString(number, 10)
	if !ok {
		return Quantity{}, fmt.Errorf("crowdsale: invalid quantity amount %q", fields[0])
	}
	return Quantity{Amount: amount, Unit: Unit{Code: code, Decimals: uint8(decimals)}}, nil
}

// Rates is the externally supplied rate snapshot. BaseUSD and SecondaryUSD
// are USD prices of one whole unit, UnitsPerUSD is the number of sale units
// issued per whole USD and SecondaryRaised is the amount collected in the
// secondary currency outside this ledger.
type Rates struct {
	BaseUSD         Quantity `json:"baseUsd"`
	SecondaryUSD    Quantity `json:"secondaryUsd"`
	SecondaryRaised Quantity `json:"secondaryRaised"`
	UnitsPerUSD     Quantity `json:"unitsPerUsd"`
}

// Clone returns a deep copy of the rates.
func (r Rates) Clone() Rates {
	return Rates{
		BaseUSD:         r.BaseUSD.Clone(),
		SecondaryUSD:    r.SecondaryUSD.Clone(),
		SecondaryRaised: r.SecondaryRaised.Clone(),
		UnitsPerUSD:     r.UnitsPerUSD.Clone(),
	}
}

// Phase names the lifecycle stage reported to callers.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseActive    Phase = "active"
	PhaseClosed    Phase = "closed"
	PhaseFinalized Phase = "finalized"
)

// Sale is the persisted singleton describing the sale window, running totals,
// rate snapshot and lifecycle flags.
type Sale struct {
	Start          int64
	Finish         int64
	TotalBase      *big.Int
	TotalUSD       *big.Int
	SecondaryUSD   *big.Int
	Rates          Rates
	ValidUntil     int64
	Finished       bool
	HardcapReached bool
	Finalized      bool
	// Settling is set by the first withdraw or finalize; SettledBase and
	// SettledUSD hold the totals every later settlement is computed against.
	Settling      bool
	SettledBase   *big.Int
	SettledUSD    *big.Int
	NextDepositID uint64
	Nonce         uint64
	Clock         int64
}

func newSale(start, finish int64) *Sale {
	return &Sale{
		Start:         start,
		Finish:        finish,
		TotalBase:     big.NewInt(0),
		TotalUSD:      big.NewInt(0),
		SecondaryUSD:  big.NewInt(0),
		SettledBase:   big.NewInt(0),
		SettledUSD:    big.NewInt(0),
		NextDepositID: 1,
	}
}

// Clone returns a deep copy of the sale.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalBase = newBigInt(s.TotalBase)
	clone.TotalUSD = newBigInt(s.TotalUSD)
	clone.SecondaryUSD = newBigInt(s.SecondaryUSD)
	clone.SettledBase = newBigInt(s.SettledBase)
	clone.SettledUSD = newBigInt(s.SettledUSD)
	clone.Rates = s.Rates.Clone()
	return &clone
}

// Closed reports whether the sale stopped accepting contributions through a
// phase flag.
func (s *Sale) Closed() bool {
	return s != nil && (s.Finished || s.HardcapReached)
}

// RatesFresh reports whether the rate snapshot may be used at now.
func (s *Sale) RatesFresh(now int64) bool {
	return s != nil && now <= s.ValidUntil
}

// Phase derives the lifecycle stage at now.
func (s *Sale) Phase(now int64) Phase {
	switch {
	case s.Finalized:
		return PhaseFinalized
	case s.Closed():
		return PhaseClosed
	case now < s.Start:
		return PhasePending
	default:
		return PhaseActive
	}
}

// Deposit is a single contribution. USD and Units are frozen at the rate in
// force when the contribution was recorded.
type Deposit struct {
	ID        uint64
	Investor  [20]byte
	Base      *big.Int
	USD       *big.Int
	Units     *big.Int
	Timestamp int64
}

// Clone returns a deep copy of the deposit.
func (d *Deposit) Clone() *Deposit {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Base = newBigInt(d.Base)
	clone.USD = newBigInt(d.USD)
	clone.Units = newBigInt(d.Units)
	return &clone
}

// ListKind selects one of the eligibility sets.
type ListKind uint8

const (
	ListWhite ListKind = iota + 1
	ListGrey
)

func (k ListKind) String() string {
	switch k {
	case ListWhite:
		return "whitelist"
	case ListGrey:
		return "greylist"
	default:
		return "unknown"
	}
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	Account [20]byte
}

// EffectKind enumerates the asset instructions an operation can emit.
type EffectKind string

const (
	EffectTransfer EffectKind = "transfer"
	EffectIssue    EffectKind = "issue"
	EffectUnlock   EffectKind = "unlock"
	// EffectDeposit books a reported contribution into contract custody. The
	// engine never emits it; hosts that keep their own ledger enqueue it.
	EffectDeposit EffectKind = "deposit"
)

// Effect is an asset instruction executed by the host after the call that
// produced it commits. Key is stable for the committed call and lets the
// receiving asset service discard redeliveries.
type Effect struct {
	Key      string
	Kind     EffectKind
	From     [20]byte
	To       [20]byte
	Quantity Quantity
	Memo     string
}

// Clone returns a deep copy of the effect.
func (e Effect) Clone() Effect {
	e.Quantity = e.Quantity.Clone()
	return e
}

// Allocation is a fixed issuance performed by Init.
type Allocation struct {
	To     [20]byte
	Amount *big.Int
}

// Quote previews what settlement would pay an investor given current state.
type Quote struct {
	Investor    [20]byte
	Eligible    bool
	Deposits    int
	Base        *big.Int
	USD         *big.Int
	Refund      *big.Int
	Units       *big.Int
	Oversubbed  bool
	SettledBase *big.Int
	SettledUSD  *big.Int
}
