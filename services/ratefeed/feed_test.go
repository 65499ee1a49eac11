package ratefeed

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crowdsale/native/crowdsale"
)

var (
	eos = crowdsale.Unit{Code: "EOS", Decimals: 4}
	eth = crowdsale.Unit{Code: "ETH", Decimals: 4}
	usd = crowdsale.Unit{Code: "USD", Decimals: 2}
	tkn = crowdsale.Unit{Code: "TKN", Decimals: 4}
)

type capturingPublisher struct {
	calls []crowdsale.Rates
	p     []crowdsale.Principal
	err   error
}

func (c *capturingPublisher) SetDaily(ctx context.Context, p crowdsale.Principal, rates crowdsale.Rates, window time.Duration) error {
	_ = ctx
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, rates)
	c.p = append(c.p, p)
	return nil
}

type fakeSource struct {
	name  string
	quote Quote
	err   error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, base, quote string) (Quote, error) {
	_ = ctx
	if f.err != nil {
		return Quote{}, f.err
	}
	return f.quote, nil
}

func testConfig() Config {
	return Config{
		Operator:      [20]byte{0x01},
		BaseUnit:      eos,
		SecondaryUnit: eth,
		USDUnit:       usd,
		UnitsPerUSD:   crowdsale.NewQuantity(100_000, tkn),
		Window:        24 * time.Hour,
		MinFeeds:      2,
	}
}

func TestTickPublishesMedian(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sources := []Source{
		&StaticSource{Label: "a", Now: func() time.Time { return now }, Rates: map[string]string{"EOS/USD": "4.99", "ETH/USD": "2000"}},
		&StaticSource{Label: "b", Now: func() time.Time { return now }, Rates: map[string]string{"EOS/USD": "5.015", "ETH/USD": "2010.50"}},
		&StaticSource{Label: "c", Now: func() time.Time { return now }, Rates: map[string]string{"EOS/USD": "5.40", "ETH/USD": "1990"}},
		&fakeSource{name: "down", err: errors.New("timeout")},
	}
	publisher := &capturingPublisher{}
	feed, err := New(testConfig(), publisher, sources,
		WithClock(func() time.Time { return now }),
		WithRaised(func(context.Context) (crowdsale.Quantity, error) { return crowdsale.NewQuantity(12_500, eth), nil }),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := feed.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(publisher.calls) != 1 {
		t.Fatalf("expected one publication, got %d", len(publisher.calls))
	}
	rates := publisher.calls[0]
	if rates.BaseUSD.Amount.Int64() != 501 || rates.BaseUSD.Unit != usd {
		t.Fatalf("expected 5.01 USD base price, got %s", rates.BaseUSD)
	}
	if rates.SecondaryUSD.Amount.Int64() != 200_000 {
		t.Fatalf("expected 2000.00 USD secondary price, got %s", rates.SecondaryUSD)
	}
	if rates.SecondaryRaised.String() != "1.2500 ETH" || rates.UnitsPerUSD.Amount.Int64() != 100_000 {
		t.Fatalf("unexpected snapshot %+v", rates)
	}
	if publisher.p[0].Account != ([20]byte{0x01}) {
		t.Fatalf("publication must use the operator principal")
	}
}

func TestTickRequiresMinimumFeeds(t *testing.T) {
	now := time.Now()
	sources := []Source{
		&fakeSource{name: "fresh", quote: Quote{Rate: big.NewRat(5, 1), Timestamp: now}},
		&fakeSource{name: "stale", quote: Quote{Rate: big.NewRat(5, 1), Timestamp: now.Add(-time.Hour)}},
		&fakeSource{name: "future", quote: Quote{Rate: big.NewRat(5, 1), Timestamp: now.Add(time.Hour)}},
	}
	publisher := &capturingPublisher{}
	feed, err := New(testConfig(), publisher, sources, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := feed.Tick(context.Background()); err == nil {
		t.Fatalf("expected insufficient feeds error")
	}
	if len(publisher.calls) != 0 {
		t.Fatalf("nothing may be published")
	}
}

func TestTickSkipsFreshRates(t *testing.T) {
	now := time.Now()
	source := &StaticSource{Rates: map[string]string{"EOS/USD": "5", "ETH/USD": "2000"}, Now: func() time.Time { return now }}
	cfg := testConfig()
	cfg.MinFeeds = 1
	feed, err := New(cfg, &capturingPublisher{err: crowdsale.ErrRatesStillFresh}, []Source{source}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := feed.Tick(context.Background()); err != nil {
		t.Fatalf("fresh rates must be skipped, got %v", err)
	}

	feed, err = New(cfg, &capturingPublisher{err: crowdsale.ErrUnauthorized}, []Source{source}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := feed.Tick(context.Background()); !errors.Is(err, crowdsale.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("base") != "EOS" || r.URL.Query().Get("quote") != "USD" {
			http.Error(w, "unknown pair", http.StatusNotFound)
			return
		}
		if r.Header.Get("X-API-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rate": "5.0125", "timestamp": stamp})
	}))
	defer srv.Close()

	src, err := Build("feed", "http", srv.URL, "secret", nil, srv.Client())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	q, err := src.Fetch(context.Background(), "eos", "usd")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Rate.Cmp(big.NewRat(50125, 10000)) != 0 || !q.Timestamp.Equal(stamp) {
		t.Fatalf("unexpected quote %v at %v", q.Rate, q.Timestamp)
	}
	if _, err := src.Fetch(context.Background(), "ETH", "USD"); err == nil {
		t.Fatalf("expected error for unknown pair")
	}
	if _, err := Build("x", "carrier-pigeon", "", "", nil, nil); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	source := &StaticSource{Rates: map[string]string{}}
	feed, err := New(testConfig(), &capturingPublisher{}, []Source{source})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := feed.Schedule(context.Background(), "not a schedule"); err == nil {
		t.Fatalf("expected parse error")
	}
	stop, err := feed.Schedule(context.Background(), "")
	if err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	stop()
}

func TestToMinorTruncates(t *testing.T) {
	if got := toMinor(big.NewRat(50159, 10000), 2); got.Int64() != 501 {
		t.Fatalf("expected 501, got %s", got)
	}
}
