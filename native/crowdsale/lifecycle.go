package crowdsale

const initialDistributionMemo = "Initial token distribution"

// Init creates the sale with the supplied window and issues the configured
// initial allocations. It may be called once, by the issuer or the contract
// account itself.
func (e *Engine) Init(p Principal, start, finish int64) ([]Effect, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if p.Account != e.params.Issuer && p.Account != e.params.Contract {
		return nil, ErrUnauthorized
	}
	if err := e.params.Validate(); err != nil {
		return nil, err
	}
	_, exists, err := e.loadSale(false)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyInitialized
	}
	if start < 0 || start >= finish {
		return nil, ErrInvalidWindow
	}
	sale := newSale(start, finish)
	set := newEffectSet(sale, "init")
	for _, alloc := range e.params.Allocations {
		set.add(EffectIssue, e.params.Contract, alloc.To, Quantity{Amount: alloc.Amount, Unit: e.params.SaleUnit}, initialDistributionMemo)
	}
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return nil, err
	}
	e.emit(InitializedEvent(start, finish, len(e.params.Allocations)))
	return set.list(), nil
}

// SetStart moves the start of the sale. It is only permitted while the
// current start has not been reached.
func (e *Engine) SetStart(p Principal, start int64) error {
	sale, err := e.issuerSale(p)
	if err != nil {
		return err
	}
	if e.now(sale) > sale.Start {
		return ErrAlreadyStarted
	}
	if start < 0 || start >= sale.Finish {
		return ErrInvalidWindow
	}
	sale.Start = start
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return err
	}
	e.emit(WindowUpdatedEvent(sale.Start, sale.Finish))
	return nil
}

// SetFinish moves the end of the sale. It is only permitted while the
// current finish has not passed.
func (e *Engine) SetFinish(p Principal, finish int64) error {
	sale, err := e.issuerSale(p)
	if err != nil {
		return err
	}
	if e.now(sale) > sale.Finish {
		return ErrAlreadyEnded
	}
	if finish <= sale.Start {
		return ErrInvalidWindow
	}
	sale.Finish = finish
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return err
	}
	e.emit(WindowUpdatedEvent(sale.Start, sale.Finish))
	return nil
}

// SetTime overrides the sale clock. Only available when the engine runs with
// Params.Debug. A zero clock means no override, so ts must be positive.
func (e *Engine) SetTime(p Principal, ts int64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if !e.params.Debug {
		return ErrDebugDisabled
	}
	sale, err := e.issuerSale(p)
	if err != nil {
		return err
	}
	if ts <= 0 {
		return ErrInvalidWindow
	}
	sale.Clock = ts
	if err := e.state.CrowdsaleSalePut(sale); err != nil {
		return err
	}
	e.emit(ClockSetEvent(ts))
	return nil
}
