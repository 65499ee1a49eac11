package crowdsale

import (
	"time"
)

// SetDaily installs a new rate snapshot valid for window. The previous
// snapshot must have expired. Only this operation moves the sale into the
// finished or hard-capped phase: it re-values the secondary-currency raise,
// then raises the flags when the window has passed or the cap is met.
func (e *Engine) SetDaily(p Principal, rates Rates, window time.Duration) error {
	sale, err := e.issuerSale(p)
	if err != nil {
		return err
	}
	if err := e.checkRates(rates); err != nil {
		return err
	}
	now := e.now(sale)
	if now < sale.ValidUntil {
		return ErrRatesStillFresh
	}
	if sale.Closed() {
		return ErrSaleClosed
	}
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		return ErrInvalidValidity
	}

	secondaryUSD, err := toUSD(rates.SecondaryRaised, rates.SecondaryUSD, e.params.USDUnit)
	if err != nil {
		return err
	}
	eligibleUSD, err := subFrom(sale.TotalUSD, sale.SecondaryUSD)
	if err != nil {
		return err
	}
	sale.Rates = rates.Clone()
	sale.SecondaryUSD = secondaryUSD.Amount
	sale.TotalUSD = addTo(eligibleUSD, secondaryUSD.Amount)
	if now > sale.Finish {
		sale.Finished = true
	}
	if sale.TotalUSD.Cmp(e.params.Cap) >= 0 {
		sale.HardcapReached = true
	}
	sale.ValidUntil = now + seconds
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return err
	}
	e.emit(RatesUpdatedEvent(sale))
	return nil
}

func (e *Engine) checkRates(rates Rates) error {
	if rates.BaseUSD.Unit != e.params.USDUnit || rates.SecondaryUSD.Unit != e.params.USDUnit {
		return ErrUnitMismatch
	}
	if rates.SecondaryRaised.Unit != e.params.SecondaryUnit {
		return ErrUnitMismatch
	}
	if rates.UnitsPerUSD.Unit != e.params.SaleUnit {
		return ErrUnitMismatch
	}
	if rates.BaseUSD.Sign() <= 0 || rates.UnitsPerUSD.Sign() <= 0 {
		return ErrInvalidRate
	}
	if rates.SecondaryUSD.Sign() < 0 || rates.SecondaryRaised.Sign() < 0 {
		return ErrInvalidRate
	}
	return nil
}
