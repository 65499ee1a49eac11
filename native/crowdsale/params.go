package crowdsale

import (
	"fmt"
	"math/big"
)

// Params carries the sale constants fixed at deployment.
type Params struct {
	// Issuer administers the sale and receives the raised base currency.
	Issuer [20]byte
	// Contract is the account holding contributions until settlement.
	Contract [20]byte
	// Notifier is the principal the base asset service uses to report
	// incoming transfers.
	Notifier [20]byte

	BaseUnit      Unit
	SecondaryUnit Unit
	USDUnit       Unit
	SaleUnit      Unit

	// Cap is the hard cap expressed in USDUnit.
	Cap *big.Int
	// MinContrib and MaxContrib bound a single contribution in BaseUnit. A
	// zero MaxContrib disables the upper bound.
	MinContrib *big.Int
	MaxContrib *big.Int

	Allocations  []Allocation
	Transferable bool
	Debug        bool
}

// Validate checks that the parameters describe a usable sale.
func (p Params) Validate() error {
	if isZeroAddress(p.Issuer) {
		return fmt.Errorf("%w: issuer required", ErrInvalidParams)
	}
	if isZeroAddress(p.Contract) {
		return fmt.Errorf("%w: contract account required", ErrInvalidParams)
	}
	if isZeroAddress(p.Notifier) {
		return fmt.Errorf("%w: deposit notifier required", ErrInvalidParams)
	}
	units := map[string]Unit{
		"base":      p.BaseUnit,
		"secondary": p.SecondaryUnit,
		"usd":       p.USDUnit,
		"sale":      p.SaleUnit,
	}
	for name, unit := range units {
		if unit.Code == "" {
			return fmt.Errorf("%w: %s unit code required", ErrInvalidParams, name)
		}
		if unit.Decimals > 18 {
			return fmt.Errorf("%w: %s unit precision above 18", ErrInvalidParams, name)
		}
	}
	if p.Cap == nil || p.Cap.Sign() <= 0 {
		return fmt.Errorf("%w: cap must be positive", ErrInvalidParams)
	}
	if p.MinContrib != nil && p.MinContrib.Sign() < 0 {
		return fmt.Errorf("%w: minimum contribution negative", ErrInvalidParams)
	}
	if p.MaxContrib != nil && p.MaxContrib.Sign() < 0 {
		return fmt.Errorf("%w: maximum contribution negative", ErrInvalidParams)
	}
	if p.MaxContrib != nil && p.MaxContrib.Sign() > 0 && p.MinContrib != nil && p.MinContrib.Cmp(p.MaxContrib) > 0 {
		return fmt.Errorf("%w: minimum contribution above maximum", ErrInvalidParams)
	}
	for i, alloc := range p.Allocations {
		if isZeroAddress(alloc.To) {
			return fmt.Errorf("%w: allocation %d has no recipient", ErrInvalidParams, i)
		}
		if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: allocation %d amount must be positive", ErrInvalidParams, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.Cap = newBigInt(p.Cap)
	clone.MinContrib = newBigInt(p.MinContrib)
	clone.MaxContrib = newBigInt(p.MaxContrib)
	clone.Allocations = make([]Allocation, len(p.Allocations))
	for i, alloc := range p.Allocations {
		clone.Allocations[i] = Allocation{To: alloc.To, Amount: newBigInt(alloc.Amount)}
	}
	return clone
}
