package crowdsale

// OnDeposit records a contribution reported by the base asset service. The
// contribution is valued at the current rate and frozen; it counts toward
// the raised totals only while the investor is whitelisted. No asset moves.
func (e *Engine) OnDeposit(p Principal, investor [20]byte, amount Quantity) (*Deposit, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if p.Account != e.params.Notifier {
		return nil, ErrNotNotifier
	}
	sale, _, err := e.loadSale(true)
	if err != nil {
		return nil, err
	}
	now := e.now(sale)
	if now < sale.Start {
		return nil, ErrNotStarted
	}
	if now > sale.Finish {
		return nil, ErrSaleEnded
	}
	if !sale.RatesFresh(now) {
		return nil, ErrRatesStale
	}
	if sale.HardcapReached {
		return nil, ErrHardcapReached
	}
	if amount.Unit != e.params.BaseUnit {
		return nil, ErrUnitMismatch
	}
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.params.MinContrib != nil && amount.Amount.Cmp(e.params.MinContrib) < 0 {
		return nil, ErrBelowMinimum
	}
	if e.params.MaxContrib != nil && e.params.MaxContrib.Sign() > 0 && amount.Amount.Cmp(e.params.MaxContrib) > 0 {
		return nil, ErrAboveMaximum
	}
	if investor == e.params.Contract {
		return nil, ErrSelfDeposit
	}
	greylisted, err := e.state.CrowdsaleListHas(ListGrey, investor)
	if err != nil {
		return nil, err
	}
	if greylisted {
		return nil, ErrGreylisted
	}

	usd, err := toUSD(amount, sale.Rates.BaseUSD, e.params.USDUnit)
	if err != nil {
		return nil, err
	}
	units, err := toUnits(usd, sale.Rates.UnitsPerUSD, e.params.SaleUnit)
	if err != nil {
		return nil, err
	}
	dep := &Deposit{
		ID:        sale.NextDepositID,
		Investor:  investor,
		Base:      newBigInt(amount.Amount),
		USD:       usd.Amount,
		Units:     units.Amount,
		Timestamp: now,
	}
	sale.NextDepositID++

	eligible, err := e.state.CrowdsaleListHas(ListWhite, investor)
	if err != nil {
		return nil, err
	}
	if eligible {
		sale.TotalBase = addTo(sale.TotalBase, dep.Base)
		sale.TotalUSD = addTo(sale.TotalUSD, dep.USD)
	}
	if err := e.state.CrowdsaleDepositPut(dep); err != nil {
		return nil, err
	}
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return nil, err
	}
	e.emit(DepositRecordedEvent(dep, eligible))
	return dep.Clone(), nil
}
