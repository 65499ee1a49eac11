package ratefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"crowdsale/native/crowdsale"
	"crowdsale/observability/metrics"
)

// DefaultSchedule publishes once a day at midnight.
const DefaultSchedule = "@daily"

// Publisher accepts a new daily rate snapshot.
type Publisher interface {
	SetDaily(ctx context.Context, p crowdsale.Principal, rates crowdsale.Rates, window time.Duration) error
}

// RaisedFunc reports the amount raised in the secondary currency outside the
// sale ledger.
type RaisedFunc func(ctx context.Context) (crowdsale.Quantity, error)

// Config describes what the feed publishes and on whose behalf.
type Config struct {
	Operator      [20]byte
	BaseUnit      crowdsale.Unit
	SecondaryUnit crowdsale.Unit
	USDUnit       crowdsale.Unit
	UnitsPerUSD   crowdsale.Quantity
	Window        time.Duration
	MaxAge        time.Duration
	MinFeeds      int
}

// Feed aggregates prices from several sources and publishes the median as
// the sale's daily rates.
type Feed struct {
	cfg       Config
	publisher Publisher
	sources   []Source
	raised    RaisedFunc
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithRaised sets the secondary-currency raise reporter. Without it the feed
// publishes zero.
func WithRaised(fn RaisedFunc) Option {
	return func(f *Feed) {
		if fn != nil {
			f.raised = fn
		}
	}
}

// WithClock overrides the clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

// New constructs a feed.
func New(cfg Config, publisher Publisher, sources []Source, opts ...Option) (*Feed, error) {
	if publisher == nil {
		return nil, fmt.Errorf("ratefeed: publisher required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("ratefeed: at least one source required")
	}
	if cfg.UnitsPerUSD.Amount == nil || cfg.UnitsPerUSD.Sign() <= 0 {
		return nil, fmt.Errorf("ratefeed: units per USD must be positive")
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}
	if cfg.MinFeeds <= 0 {
		cfg.MinFeeds = 1
	}
	f := &Feed{
		cfg:       cfg,
		publisher: publisher,
		sources:   append([]Source{}, sources...),
		logger:    slog.Default(),
		now:       time.Now,
	}
	f.raised = func(context.Context) (crowdsale.Quantity, error) {
		return crowdsale.NewQuantity(0, f.cfg.SecondaryUnit), nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Rates assembles a snapshot from the current source medians without
// publishing it.
func (f *Feed) Rates(ctx context.Context) (crowdsale.Rates, error) {
	basePrice, err := f.median(ctx, f.cfg.BaseUnit.Code, f.cfg.USDUnit.Code)
	if err != nil {
		return crowdsale.Rates{}, err
	}
	secondaryPrice, err := f.median(ctx, f.cfg.SecondaryUnit.Code, f.cfg.USDUnit.Code)
	if err != nil {
		return crowdsale.Rates{}, err
	}
	raised, err := f.raised(ctx)
	if err != nil {
		return crowdsale.Rates{}, fmt.Errorf("ratefeed: secondary raise: %w", err)
	}
	return crowdsale.Rates{
		BaseUSD:         crowdsale.Quantity{Amount: toMinor(basePrice, f.cfg.USDUnit.Decimals), Unit: f.cfg.USDUnit},
		SecondaryUSD:    crowdsale.Quantity{Amount: toMinor(secondaryPrice, f.cfg.USDUnit.Decimals), Unit: f.cfg.USDUnit},
		SecondaryRaised: raised.Clone(),
		UnitsPerUSD:     f.cfg.UnitsPerUSD.Clone(),
	}, nil
}

// Tick performs one aggregation and publication. A sale whose rates are
// still fresh, or that has already closed, is skipped without error.
func (f *Feed) Tick(ctx context.Context) error {
	m := metrics.Crowdsale()
	rates, err := f.Rates(ctx)
	if err != nil {
		m.ObserveRatePublish("failed")
		return err
	}
	err = f.publisher.SetDaily(ctx, crowdsale.Principal{Account: f.cfg.Operator}, rates, f.cfg.Window)
	switch {
	case err == nil:
		m.ObserveRatePublish("published")
		f.logger.Info("daily rates published",
			slog.String("base_usd", rates.BaseUSD.String()),
			slog.String("secondary_usd", rates.SecondaryUSD.String()),
			slog.Duration("window", f.cfg.Window))
		return nil
	case errors.Is(err, crowdsale.ErrRatesStillFresh), errors.Is(err, crowdsale.ErrSaleClosed):
		m.ObserveRatePublish("skipped")
		f.logger.Info("daily rates skipped", slog.String("reason", err.Error()))
		return nil
	default:
		m.ObserveRatePublish("failed")
		return fmt.Errorf("ratefeed: publish: %w", err)
	}
}

// Schedule runs Tick on spec (standard five-field cron or a descriptor such
// as @daily) until the returned stop function is called.
func (f *Feed) Schedule(ctx context.Context, spec string) (func(), error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := f.Tick(ctx); err != nil {
			f.logger.Warn("rate feed tick failed", slog.Any("error", err))
		}
	}); err != nil {
		return nil, fmt.Errorf("ratefeed: schedule %q: %w", spec, err)
	}
	c.Start()
	f.logger.Info("rate feed scheduled", slog.String("schedule", spec), slog.Int("sources", len(f.sources)))
	return func() { <-c.Stop().Done() }, nil
}

func (f *Feed) median(ctx context.Context, base, quote string) (*big.Rat, error) {
	now := f.now()
	rates := make([]*big.Rat, 0, len(f.sources))
	for _, src := range f.sources {
		if src == nil {
			continue
		}
		q, err := src.Fetch(ctx, base, quote)
		if err != nil {
			f.logger.Warn("rate source failed", slog.String("source", src.Name()), slog.String("pair", pairKey(base, quote)), slog.Any("error", err))
			continue
		}
		if q.Rate == nil || q.Rate.Sign() <= 0 {
			f.logger.Warn("rate source returned invalid rate", slog.String("source", src.Name()))
			continue
		}
		if q.Timestamp.After(now.Add(5 * time.Second)) {
			f.logger.Warn("rate source produced future timestamp", slog.String("source", src.Name()))
			continue
		}
		if q.Timestamp.Before(now.Add(-f.cfg.MaxAge)) {
			f.logger.Warn("rate source quote expired", slog.String("source", src.Name()))
			continue
		}
		rates = append(rates, new(big.Rat).Set(q.Rate))
	}
	if len(rates) < f.cfg.MinFeeds {
		return nil, fmt.Errorf("ratefeed: %d of %d required feeds for %s", len(rates), f.cfg.MinFeeds, pairKey(base, quote))
	}
	return computeMedian(rates), nil
}

func computeMedian(rates []*big.Rat) *big.Rat {
	if len(rates) == 0 {
		return nil
	}
	sorted := append([]*big.Rat{}, rates...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Rat).Set(sorted[mid])
	}
	sum := new(big.Rat).Add(sorted[mid-1], sorted[mid])
	return sum.Quo(sum, big.NewRat(2, 1))
}

// toMinor converts a decimal price into minor units, truncating.
func toMinor(price *big.Rat, decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	num := new(big.Int).Mul(price.Num(), scale)
	return num.Quo(num, price.Denom())
}
