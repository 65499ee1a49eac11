package crowdsale

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"crowdsale/core/events"
	"crowdsale/core/types"
)

// effectNamespace scopes effect keys so they never collide with keys minted
// by other producers.
var effectNamespace = uuid.MustParse("5c8e3f0a-6a43-4d53-9f0e-2f1f7b3c9a11")

type engineState interface {
	CrowdsaleSaleGet() (*Sale, bool, error)
	CrowdsaleSalePut(sale *Sale) error
	CrowdsaleDepositPut(dep *Deposit) error
	CrowdsaleDepositsByInvestor(investor [20]byte) ([]*Deposit, error)
	CrowdsaleDepositsDelete(investor [20]byte) error
	CrowdsaleListHas(list ListKind, account [20]byte) (bool, error)
	CrowdsaleListSet(list ListKind, account [20]byte, member bool) error
}

// Engine applies sale operations against the configured state backend. A
// fresh engine is built for every call by the host, which commits or
// discards the state touched by the call as a unit.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	params  Params
}

// NewEngine constructs a crowdsale engine with default dependencies.
func NewEngine(params Params) *Engine {
	return &Engine{
		params:  params.Clone(),
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Params returns a copy of the sale parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

// now returns the debug clock when it is enabled and set, otherwise the
// configured time source.
func (e *Engine) now(sale *Sale) int64 {
	if e.params.Debug && sale != nil && sale.Clock != 0 {
		return sale.Clock
	}
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Now reports the time the engine would use for the next operation.
func (e *Engine) Now() (int64, error) {
	sale, _, err := e.loadSale(false)
	if err != nil {
		return 0, err
	}
	return e.now(sale), nil
}

func (e *Engine) loadSale(required bool) (*Sale, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	sale, ok, err := e.state.CrowdsaleSaleGet()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if required {
			return nil, false, ErrNotInitialized
		}
		return nil, false, nil
	}
	return sale, true, nil
}

func (e *Engine) requireIssuer(p Principal) error {
	if p.Account != e.params.Issuer {
		return ErrUnauthorized
	}
	return nil
}

// issuerSale authorises the issuer and loads the initialised sale.
func (e *Engine) issuerSale(p Principal) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := e.requireIssuer(p); err != nil {
		return nil, err
	}
	sale, _, err := e.loadSale(true)
	return sale, err
}

// Sale returns the persisted sale singleton.
func (e *Engine) Sale() (*Sale, error) {
	sale, _, err := e.loadSale(true)
	if err != nil {
		return nil, err
	}
	return sale.Clone(), nil
}

// Deposits returns the live contributions recorded for investor.
func (e *Engine) Deposits(investor [20]byte) ([]*Deposit, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.CrowdsaleDepositsByInvestor(investor)
}

// IsListed reports list membership for account.
func (e *Engine) IsListed(list ListKind, account [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	return e.state.CrowdsaleListHas(list, account)
}

// effectSet accumulates the effects of one call. Keys derive from the sale
// nonce so a committed call always yields the same keys.
type effectSet struct {
	nonce   uint64
	op      string
	effects []Effect
}

// DepositEffect returns the custody booking for a recorded deposit. The key
// derives from the deposit id, so a replayed booking is discarded.
func DepositEffect(params Params, dep *Deposit) Effect {
	name := fmt.Sprintf("deposit/%d", dep.ID)
	return Effect{
		Key:      uuid.NewSHA1(effectNamespace, []byte(name)).String(),
		Kind:     EffectDeposit,
		From:     dep.Investor,
		To:       params.Contract,
		Quantity: Quantity{Amount: newBigInt(dep.Base), Unit: params.BaseUnit},
		Memo:     depositMemo,
	}
}

func newEffectSet(sale *Sale, op string) *effectSet {
	sale.Nonce++
	return &effectSet{nonce: sale.Nonce, op: op}
}

func (s *effectSet) add(kind EffectKind, from, to [20]byte, quantity Quantity, memo string) {
	name := fmt.Sprintf("%d/%s/%d", s.nonce, s.op, len(s.effects))
	s.effects = append(s.effects, Effect{
		Key:      uuid.NewSHA1(effectNamespace, []byte(name)).String(),
		Kind:     kind,
		From:     from,
		To:       to,
		Quantity: quantity.Clone(),
		Memo:     memo,
	})
}

func (s *effectSet) list() []Effect {
	if s == nil || len(s.effects) == 0 {
		return nil
	}
	return s.effects
}
