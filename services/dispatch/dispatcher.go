package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crowdsale/native/crowdsale"
	"crowdsale/observability/metrics"
)

// Outbox is the committed queue of effects awaiting delivery.
type Outbox interface {
	PendingEffects(limit int) ([]crowdsale.Effect, error)
	AckEffects(ctx context.Context, keys []string) error
}

// Applier books one effect with the asset services. It reports false when the
// effect had been applied before.
type Applier interface {
	Apply(ctx context.Context, effect crowdsale.Effect) (bool, error)
}

// Dispatcher drains the outbox into the asset services in commit order.
type Dispatcher struct {
	outbox   Outbox
	applier  Applier
	interval time.Duration
	batch    int
	logger   *slog.Logger
	once     sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithBatchSize bounds the number of effects delivered per tick.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batch = n
		}
	}
}

// New constructs a dispatcher.
func New(outbox Outbox, applier Applier, interval time.Duration, opts ...Option) (*Dispatcher, error) {
	if outbox == nil {
		return nil, fmt.Errorf("dispatch: outbox required")
	}
	if applier == nil {
		return nil, fmt.Errorf("dispatch: applier required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("dispatch: interval must be positive")
	}
	d := &Dispatcher{
		outbox:   outbox,
		applier:  applier,
		interval: interval,
		batch:    100,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Run blocks, delivering pending effects every interval until the context is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil {
		return fmt.Errorf("dispatch: not configured")
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.once.Do(func() {
		d.logger.Info("effect dispatcher started", slog.Duration("interval", d.interval), slog.Int("batch", d.batch))
	})
	for {
		if _, err := d.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("dispatch tick failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick delivers one batch and returns the number of effects acknowledged.
// Delivery stops at the first failure so later effects never overtake an
// earlier one; the failed effect is retried on the next tick.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	if d == nil {
		return 0, fmt.Errorf("dispatch: not configured")
	}
	pending, err := d.outbox.PendingEffects(d.batch)
	if err != nil {
		return 0, fmt.Errorf("dispatch: load pending: %w", err)
	}
	m := metrics.Crowdsale()
	m.SetBacklog(len(pending))
	if len(pending) == 0 {
		return 0, nil
	}

	delivered := make([]string, 0, len(pending))
	var deliverErr error
	for _, effect := range pending {
		if err := ctx.Err(); err != nil {
			deliverErr = err
			break
		}
		applied, err := d.applier.Apply(ctx, effect)
		if err != nil {
			m.ObserveEffect(string(effect.Kind), "failed")
			deliverErr = fmt.Errorf("dispatch: apply %s: %w", effect.Key, err)
			break
		}
		outcome := "applied"
		if !applied {
			outcome = "duplicate"
		}
		m.ObserveEffect(string(effect.Kind), outcome)
		d.logger.Debug("effect delivered",
			slog.String("effect", effect.Key),
			slog.String("kind", string(effect.Kind)),
			slog.String("quantity", effect.Quantity.String()),
			slog.String("outcome", outcome))
		delivered = append(delivered, effect.Key)
	}

	if len(delivered) > 0 {
		if err := d.outbox.AckEffects(ctx, delivered); err != nil {
			return 0, fmt.Errorf("dispatch: ack: %w", err)
		}
		m.SetBacklog(len(pending) - len(delivered))
	}
	return len(delivered), deliverErr
}
