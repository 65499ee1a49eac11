package crowdsale

import "math/big"

const (
	withdrawMemo = "Crowdsale settlement"
	refundMemo   = "Crowdsale refund"
	finalizeMemo = "Crowdsale proceeds"
	unlockMemo   = "Crowdsale finalized"
	depositMemo  = "Crowdsale contribution"
)

// settlement is the computed payout for one investor.
type settlement struct {
	base   *big.Int
	usd    *big.Int
	refund *big.Int
	units  *big.Int
}

// beginSettlement freezes the settlement basis on first use.
func beginSettlement(sale *Sale) {
	if sale.Settling {
		return
	}
	sale.Settling = true
	sale.SettledBase = newBigInt(sale.TotalBase)
	sale.SettledUSD = newBigInt(sale.TotalUSD)
}

// oversubscribed reports whether the raise exceeded the cap.
func oversubscribed(totalUSD, hardCap *big.Int) bool {
	return totalUSD != nil && hardCap != nil && totalUSD.Cmp(hardCap) > 0
}

// settle apportions an eligible investor's deposits against the basis. When
// the raise exceeded the cap, the excess base currency forms a refund pool
// shared pro rata by base contributed, and each deposit's sale-unit
// entitlement is scaled by cap/raised. Every division rounds toward zero.
func settle(deposits []*Deposit, basisBase, basisUSD, hardCap *big.Int) (settlement, error) {
	out := settlement{
		base:   big.NewInt(0),
		usd:    big.NewInt(0),
		refund: big.NewInt(0),
		units:  big.NewInt(0),
	}
	entitled := big.NewInt(0)
	for _, dep := range deposits {
		out.base.Add(out.base, newBigInt(dep.Base))
		out.usd.Add(out.usd, newBigInt(dep.USD))
		entitled.Add(entitled, newBigInt(dep.Units))
	}
	if len(deposits) == 0 || !oversubscribed(basisUSD, hardCap) {
		out.units = entitled
		return out, nil
	}
	if basisBase == nil || basisBase.Sign() == 0 {
		return settlement{}, ErrDivisionByZero
	}
	excess := new(big.Int).Sub(basisUSD, hardCap)
	pool, err := mulDiv(basisBase, excess, basisUSD)
	if err != nil {
		return settlement{}, err
	}
	for _, dep := range deposits {
		share, err := mulDiv(pool, dep.Base, basisBase)
		if err != nil {
			return settlement{}, err
		}
		out.refund.Add(out.refund, share)
	}
	if out.refund.Cmp(out.base) > 0 {
		return settlement{}, ErrOverdraw
	}
	units, err := mulDiv(entitled, hardCap, basisUSD)
	if err != nil {
		return settlement{}, err
	}
	out.units = units
	return out, nil
}

// issuerShare is the base currency retained by the issuer once every
// eligible investor has been apportioned.
func issuerShare(basisBase, basisUSD, hardCap *big.Int) (*big.Int, error) {
	if !oversubscribed(basisUSD, hardCap) {
		return newBigInt(basisBase), nil
	}
	return mulDiv(basisBase, hardCap, basisUSD)
}

// SettlementDust reports the base currency that neither the refund pool nor
// the issuer share covers because both divisions truncate. It is zero until
// settlement starts and whenever the raise stayed within the cap.
func SettlementDust(sale *Sale, hardCap *big.Int) (*big.Int, error) {
	if sale == nil || !sale.Settling || !oversubscribed(sale.SettledUSD, hardCap) {
		return big.NewInt(0), nil
	}
	share, err := issuerShare(sale.SettledBase, sale.SettledUSD, hardCap)
	if err != nil {
		return nil, err
	}
	excess := new(big.Int).Sub(sale.SettledUSD, hardCap)
	pool, err := mulDiv(sale.SettledBase, excess, sale.SettledUSD)
	if err != nil {
		return nil, err
	}
	dust := new(big.Int).Sub(sale.SettledBase, share)
	return dust.Sub(dust, pool), nil
}

// Withdraw settles an eligible investor once the sale has closed: it returns
// the investor's share of any oversubscription in base currency, issues the
// sale units, and removes the investor's deposits.
func (e *Engine) Withdraw(p Principal, investor [20]byte) ([]Effect, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if p.Account != investor {
		return nil, ErrNotInvestor
	}
	sale, _, err := e.loadSale(true)
	if err != nil {
		return nil, err
	}
	if !sale.Closed() {
		return nil, ErrSaleOpen
	}
	eligible, err := e.state.CrowdsaleListHas(ListWhite, investor)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrNotWhitelisted
	}
	deposits, err := e.state.CrowdsaleDepositsByInvestor(investor)
	if err != nil {
		return nil, err
	}
	if len(deposits) == 0 {
		return nil, ErrNothingToWithdraw
	}

	beginSettlement(sale)
	result, err := settle(deposits, sale.SettledBase, sale.SettledUSD, e.params.Cap)
	if err != nil {
		return nil, err
	}
	if sale.TotalBase, err = subFrom(sale.TotalBase, result.base); err != nil {
		return nil, err
	}
	if sale.TotalUSD, err = subFrom(sale.TotalUSD, result.usd); err != nil {
		return nil, err
	}

	set := newEffectSet(sale, "withdraw")
	if result.refund.Sign() > 0 {
		set.add(EffectTransfer, e.params.Contract, investor, Quantity{Amount: result.refund, Unit: e.params.BaseUnit}, withdrawMemo)
	}
	if result.units.Sign() > 0 {
		set.add(EffectIssue, e.params.Contract, investor, Quantity{Amount: result.units, Unit: e.params.SaleUnit}, withdrawMemo)
	}
	if err := e.state.CrowdsaleDepositsDelete(investor); err != nil {
		return nil, err
	}
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return nil, err
	}
	e.emit(WithdrawnEvent(investor, result.refund, result.units))
	return set.list(), nil
}

// Refund returns every recorded contribution of an investor that is not
// whitelisted once the sale has closed. No sale units are issued.
func (e *Engine) Refund(p Principal, investor [20]byte) ([]Effect, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if p.Account != investor {
		return nil, ErrNotInvestor
	}
	sale, _, err := e.loadSale(true)
	if err != nil {
		return nil, err
	}
	if !sale.Closed() {
		return nil, ErrSaleOpen
	}
	eligible, err := e.state.CrowdsaleListHas(ListWhite, investor)
	if err != nil {
		return nil, err
	}
	if eligible {
		return nil, ErrWhitelisted
	}
	deposits, err := e.state.CrowdsaleDepositsByInvestor(investor)
	if err != nil {
		return nil, err
	}
	if len(deposits) == 0 {
		return nil, ErrNothingToRefund
	}
	total, _ := sumDeposits(deposits)

	set := newEffectSet(sale, "refund")
	if total.Sign() > 0 {
		set.add(EffectTransfer, e.params.Contract, investor, Quantity{Amount: total, Unit: e.params.BaseUnit}, refundMemo)
	}
	if err := e.state.CrowdsaleDepositsDelete(investor); err != nil {
		return nil, err
	}
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return nil, err
	}
	e.emit(RefundedEvent(investor, total))
	return set.list(), nil
}

// Finalize transfers the issuer's share of the raise and, when the sale unit
// is not freely transferable, unlocks it. It can run once, after close.
func (e *Engine) Finalize(p Principal) ([]Effect, error) {
	sale, err := e.issuerSale(p)
	if err != nil {
		return nil, err
	}
	if sale.Finalized {
		return nil, ErrAlreadyFinalized
	}
	if !sale.Closed() {
		return nil, ErrSaleOpen
	}
	beginSettlement(sale)
	share, err := issuerShare(sale.SettledBase, sale.SettledUSD, e.params.Cap)
	if err != nil {
		return nil, err
	}
	sale.Finalized = true

	set := newEffectSet(sale, "finalize")
	if share.Sign() > 0 {
		set.add(EffectTransfer, e.params.Contract, e.params.Issuer, Quantity{Amount: share, Unit: e.params.BaseUnit}, finalizeMemo)
	}
	unlock := !e.params.Transferable
	if unlock {
		set.add(EffectUnlock, e.params.Contract, e.params.Contract, Quantity{Amount: big.NewInt(0), Unit: e.params.SaleUnit}, unlockMemo)
	}
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return nil, err
	}
	e.emit(FinalizedEvent(e.params.Issuer, share, unlock))
	return set.list(), nil
}

// Quote previews the settlement of investor against current state without
// mutating anything. Before settlement starts the live totals stand in for
// the frozen basis.
func (e *Engine) Quote(investor [20]byte) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	sale, _, err := e.loadSale(true)
	if err != nil {
		return nil, err
	}
	eligible, err := e.state.CrowdsaleListHas(ListWhite, investor)
	if err != nil {
		return nil, err
	}
	deposits, err := e.state.CrowdsaleDepositsByInvestor(investor)
	if err != nil {
		return nil, err
	}
	basisBase, basisUSD := sale.TotalBase, sale.TotalUSD
	if sale.Settling {
		basisBase, basisUSD = sale.SettledBase, sale.SettledUSD
	}
	quote := &Quote{
		Investor:    investor,
		Eligible:    eligible,
		Deposits:    len(deposits),
		Oversubbed:  oversubscribed(basisUSD, e.params.Cap),
		SettledBase: newBigInt(basisBase),
		SettledUSD:  newBigInt(basisUSD),
	}
	if !eligible {
		base, usd := sumDeposits(deposits)
		quote.Base, quote.USD, quote.Refund, quote.Units = base, usd, newBigInt(base), big.NewInt(0)
		return quote, nil
	}
	result, err := settle(deposits, basisBase, basisUSD, e.params.Cap)
	if err != nil {
		return nil, err
	}
	quote.Base, quote.USD, quote.Refund, quote.Units = result.base, result.usd, result.refund, result.units
	return quote, nil
}
