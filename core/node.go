package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	coreerrors "crowdsale/core/errors"
	"crowdsale/core/events"
	salestate "crowdsale/core/state"
	"crowdsale/native/crowdsale"
	"crowdsale/observability"
	"crowdsale/observability/metrics"
	telemetry "crowdsale/observability/otel"
	"crowdsale/storage"
)

// Node hosts the sale engine. It serialises every call, commits the state
// trie together with the effect outbox when a call succeeds and rewinds to
// the last committed root when it fails. Events reach subscribers only after
// the commit.
type Node struct {
	db      storage.Database
	state   *StateProcessor
	params  crowdsale.Params
	emitter events.Emitter
	nowFn   func() int64
	logger  *slog.Logger
	custody bool
	meter   metric.Meter
	ops     *telemetry.Operations
	stateMu sync.Mutex
	closed  bool
}

// Option customises a Node.
type Option func(*Node)

// WithEmitter forwards committed events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(n *Node) {
		if emitter != nil {
			n.emitter = emitter
		}
	}
}

// WithClock overrides the wall clock used by the engine.
func WithClock(now func() int64) Option {
	return func(n *Node) {
		if now != nil {
			n.nowFn = now
		}
	}
}

// WithLogger sets the node logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMeter records operation counts on meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(n *Node) {
		if meter != nil {
			n.meter = meter
		}
	}
}

// WithCustodyBooking queues a deposit effect for every recorded deposit so
// the asset ledger holds the contributions the contract later pays out.
func WithCustodyBooking() Option {
	return func(n *Node) {
		n.custody = true
	}
}

// NewNode opens the sale state stored in db.
func NewNode(db storage.Database, params crowdsale.Params, opts ...Option) (*Node, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	processor, err := NewStateProcessor(db)
	if err != nil {
		return nil, err
	}
	n := &Node{
		db:      db,
		state:   processor,
		params:  params.Clone(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	if n.ops, err = telemetry.NewOperations(n.meter); err != nil {
		n.logger.Warn("operation meter unavailable", slog.Any("error", err))
	}
	n.logger.Info("sale state opened",
		slog.String("root", processor.CommittedRoot().Hex()),
		slog.Uint64("version", processor.Version()))
	return n, nil
}

// Params returns the sale parameters the node was configured with.
func (n *Node) Params() crowdsale.Params { return n.params.Clone() }

// Close releases the backing database.
func (n *Node) Close() {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.db.Close()
}

func (n *Node) newEngine(manager *salestate.Manager, emitter events.Emitter) *crowdsale.Engine {
	engine := crowdsale.NewEngine(n.params)
	engine.SetState(manager)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(n.nowFn)
	return engine
}

type callFunc func(engine *crowdsale.Engine, manager *salestate.Manager) ([]crowdsale.Effect, error)

// execute runs one mutating call. Effects returned by fn are appended to the
// outbox before the commit so state and pending deliveries move together.
func (n *Node) execute(ctx context.Context, op string, fn callFunc) (effects []crowdsale.Effect, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "crowdsale."+op)
	defer span.End()
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = crowdsale.Kind(err)
			if outcome == "" {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("crowdsale.outcome", outcome), attribute.Int("crowdsale.effects", len(effects)))
		metrics.Crowdsale().ObserveOperation(op, outcome, time.Since(started))
		n.ops.Record(ctx, op, outcome)
	}()

	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return nil, coreerrors.ErrNodeClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	manager := salestate.NewManager(n.state.Trie)
	buffer := &events.Buffer{}
	engine := n.newEngine(manager, buffer)

	effects, err = fn(engine, manager)
	if err == nil && len(effects) > 0 {
		err = manager.Outbox().Enqueue(effects)
	}
	if err == nil {
		_, err = n.state.Commit()
	}
	if err != nil {
		buffer.Discard()
		if resetErr := n.state.Rollback(); resetErr != nil {
			n.logger.Error("state rollback failed", slog.String("operation", op), slog.Any("error", resetErr))
		}
		return nil, err
	}

	n.publish(engine, op, buffer)
	return effects, nil
}

func (n *Node) publish(engine *crowdsale.Engine, op string, buffer *events.Buffer) {
	for _, evt := range buffer.Flush(n.emitter) {
		observability.Events().RecordEvent(evt.EventType())
	}
	sale, err := engine.Sale()
	if err != nil {
		return
	}
	m := metrics.Crowdsale()
	m.SetTotals(sale.TotalBase, sale.TotalUSD, sale.SecondaryUSD)
	if op == "finalize" || op == "withdraw" {
		if dust, err := crowdsale.SettlementDust(sale, n.params.Cap); err == nil {
			m.ObserveRoundingDust(op, dust)
		}
	}
}

// view runs a read-only call against the committed state.
func (n *Node) view(fn func(engine *crowdsale.Engine, manager *salestate.Manager) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return coreerrors.ErrNodeClosed
	}
	manager := salestate.NewManager(n.state.Trie)
	return fn(n.newEngine(manager, events.NoopEmitter{}), manager)
}

// Init creates the sale and returns the initial allocation effects.
func (n *Node) Init(ctx context.Context, p crowdsale.Principal, start, finish int64) ([]crowdsale.Effect, error) {
	return n.execute(ctx, "init", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return engine.Init(p, start, finish)
	})
}

func (n *Node) SetStart(ctx context.Context, p crowdsale.Principal, start int64) error {
	_, err := n.execute(ctx, "setstart", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return nil, engine.SetStart(p, start)
	})
	return err
}

func (n *Node) SetFinish(ctx context.Context, p crowdsale.Principal, finish int64) error {
	_, err := n.execute(ctx, "setfinish", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return nil, engine.SetFinish(p, finish)
	})
	return err
}

func (n *Node) SetTime(ctx context.Context, p crowdsale.Principal, ts int64) error {
	_, err := n.execute(ctx, "settime", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return nil, engine.SetTime(p, ts)
	})
	return err
}

// ChangeList adds (member) or removes accounts from list as one batch.
func (n *Node) ChangeList(ctx context.Context, p crowdsale.Principal, list crowdsale.ListKind, member bool, accounts [][20]byte) error {
	op := list.String()
	if !member {
		op = "un" + op
	}
	_, err := n.execute(ctx, op, func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		switch {
		case list == crowdsale.ListWhite && member:
			return nil, engine.WhiteMany(p, accounts)
		case list == crowdsale.ListWhite:
			return nil, engine.UnwhiteMany(p, accounts)
		case member:
			return nil, engine.GreyMany(p, accounts)
		default:
			return nil, engine.UngreyMany(p, accounts)
		}
	})
	return err
}

// OnDeposit records a contribution reported by the base asset service.
func (n *Node) OnDeposit(ctx context.Context, p crowdsale.Principal, investor [20]byte, amount crowdsale.Quantity) (*crowdsale.Deposit, error) {
	var dep *crowdsale.Deposit
	_, err := n.execute(ctx, "deposit", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		var err error
		dep, err = engine.OnDeposit(p, investor, amount)
		if err != nil || !n.custody {
			return nil, err
		}
		return []crowdsale.Effect{crowdsale.DepositEffect(n.params, dep)}, nil
	})
	if err != nil {
		return nil, err
	}
	return dep, nil
}

func (n *Node) SetDaily(ctx context.Context, p crowdsale.Principal, rates crowdsale.Rates, window time.Duration) error {
	_, err := n.execute(ctx, "setdaily", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return nil, engine.SetDaily(p, rates, window)
	})
	return err
}

func (n *Node) Withdraw(ctx context.Context, p crowdsale.Principal, investor [20]byte) ([]crowdsale.Effect, error) {
	return n.execute(ctx, "withdraw", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return engine.Withdraw(p, investor)
	})
}

func (n *Node) Refund(ctx context.Context, p crowdsale.Principal, investor [20]byte) ([]crowdsale.Effect, error) {
	return n.execute(ctx, "refund", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return engine.Refund(p, investor)
	})
}

func (n *Node) Finalize(ctx context.Context, p crowdsale.Principal) ([]crowdsale.Effect, error) {
	return n.execute(ctx, "finalize", func(engine *crowdsale.Engine, _ *salestate.Manager) ([]crowdsale.Effect, error) {
		return engine.Finalize(p)
	})
}

// AckEffects drops delivered effects from the outbox.
func (n *Node) AckEffects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return coreerrors.ErrEmptyAckList
	}
	_, err := n.execute(ctx, "ack", func(_ *crowdsale.Engine, manager *salestate.Manager) ([]crowdsale.Effect, error) {
		return nil, manager.Outbox().Ack(keys)
	})
	return err
}

// PendingEffects lists up to limit undelivered effects in commit order.
func (n *Node) PendingEffects(limit int) ([]crowdsale.Effect, error) {
	var pending []crowdsale.Effect
	err := n.view(func(_ *crowdsale.Engine, manager *salestate.Manager) error {
		var err error
		pending, err = manager.Outbox().Pending(limit)
		return err
	})
	return pending, err
}

func (n *Node) Sale() (*crowdsale.Sale, error) {
	var sale *crowdsale.Sale
	err := n.view(func(engine *crowdsale.Engine, _ *salestate.Manager) error {
		var err error
		sale, err = engine.Sale()
		return err
	})
	return sale, err
}

func (n *Node) Deposits(investor [20]byte) ([]*crowdsale.Deposit, error) {
	var deposits []*crowdsale.Deposit
	err := n.view(func(engine *crowdsale.Engine, _ *salestate.Manager) error {
		var err error
		deposits, err = engine.Deposits(investor)
		return err
	})
	return deposits, err
}

func (n *Node) Quote(investor [20]byte) (*crowdsale.Quote, error) {
	var quote *crowdsale.Quote
	err := n.view(func(engine *crowdsale.Engine, _ *salestate.Manager) error {
		var err error
		quote, err = engine.Quote(investor)
		return err
	})
	return quote, err
}

// Quotes previews settlement for every account that ever contributed.
func (n *Node) Quotes() ([]*crowdsale.Quote, error) {
	var quotes []*crowdsale.Quote
	err := n.view(func(engine *crowdsale.Engine, manager *salestate.Manager) error {
		investors, err := manager.CrowdsaleInvestors()
		if err != nil {
			return err
		}
		quotes = make([]*crowdsale.Quote, 0, len(investors))
		for _, investor := range investors {
			quote, err := engine.Quote(investor)
			if err != nil {
				return err
			}
			quotes = append(quotes, quote)
		}
		return nil
	})
	return quotes, err
}

func (n *Node) IsListed(list crowdsale.ListKind, account [20]byte) (bool, error) {
	var listed bool
	err := n.view(func(engine *crowdsale.Engine, _ *salestate.Manager) error {
		var err error
		listed, err = engine.IsListed(list, account)
		return err
	})
	return listed, err
}

// Now reports the sale clock, which honours the debug override.
func (n *Node) Now() (int64, error) {
	var now int64
	err := n.view(func(engine *crowdsale.Engine, _ *salestate.Manager) error {
		var err error
		now, err = engine.Now()
		return err
	})
	return now, err
}
