package crowdsale

import (
	"math/big"

	"github.com/holiman/uint256"
)

// mulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func mulDiv(x, y, d *big.Int) (*big.Int, error) {
	if d == nil || d.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	ux, err := toUint256(x)
	if err != nil {
		return nil, err
	}
	uy, err := toUint256(y)
	if err != nil {
		return nil, err
	}
	ud, err := toUint256(d)
	if err != nil {
		return nil, err
	}
	result, overflow := new(uint256.Int).MulDivOverflow(ux, uy, ud)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return result.ToBig(), nil
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeTotal
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out, nil
}

// toUSD values amount at price, where price is the USD value of one whole
// unit of amount.
func toUSD(amount Quantity, price Quantity, usd Unit) (Quantity, error) {
	if price.Unit != usd {
		return Quantity{}, ErrUnitMismatch
	}
	value, err := mulDiv(amount.Amount, price.Amount, amount.Unit.Scale())
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Amount: value, Unit: usd}, nil
}

// toUnits converts a USD quantity into sale units at perUSD units per whole
// USD.
func toUnits(usd Quantity, perUSD Quantity, sale Unit) (Quantity, error) {
	if perUSD.Unit != sale {
		return Quantity{}, ErrUnitMismatch
	}
	value, err := mulDiv(usd.Amount, perUSD.Amount, usd.Unit.Scale())
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Amount: value, Unit: sale}, nil
}

func addTo(total *big.Int, delta *big.Int) *big.Int {
	return new(big.Int).Add(newBigInt(total), newBigInt(delta))
}

func subFrom(total *big.Int, delta *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(newBigInt(total), newBigInt(delta))
	if out.Sign() < 0 {
		return nil, ErrNegativeTotal
	}
	return out, nil
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
