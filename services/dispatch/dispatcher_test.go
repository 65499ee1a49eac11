package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"crowdsale/native/crowdsale"
)

type fakeOutbox struct {
	pending []crowdsale.Effect
	acked   [][]string
}

func (f *fakeOutbox) PendingEffects(limit int) ([]crowdsale.Effect, error) {
	if limit > 0 && len(f.pending) > limit {
		return append([]crowdsale.Effect(nil), f.pending[:limit]...), nil
	}
	return append([]crowdsale.Effect(nil), f.pending...), nil
}

func (f *fakeOutbox) AckEffects(ctx context.Context, keys []string) error {
	_ = ctx
	f.acked = append(f.acked, keys)
	drop := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
	}
	kept := f.pending[:0]
	for _, effect := range f.pending {
		if _, ok := drop[effect.Key]; !ok {
			kept = append(kept, effect)
		}
	}
	f.pending = kept
	return nil
}

type fakeApplier struct {
	seen   map[string]bool
	failOn string
	order  []string
}

func (f *fakeApplier) Apply(ctx context.Context, effect crowdsale.Effect) (bool, error) {
	_ = ctx
	if effect.Key == f.failOn {
		return false, errors.New("ledger offline")
	}
	f.order = append(f.order, effect.Key)
	if f.seen[effect.Key] {
		return false, nil
	}
	f.seen[effect.Key] = true
	return true, nil
}

func effects(keys ...string) []crowdsale.Effect {
	out := make([]crowdsale.Effect, 0, len(keys))
	for _, key := range keys {
		out = append(out, crowdsale.Effect{Key: key, Kind: crowdsale.EffectIssue, Quantity: crowdsale.NewQuantity(1, crowdsale.Unit{Code: "TKN", Decimals: 4})})
	}
	return out
}

func TestTickDeliversInOrderAndAcks(t *testing.T) {
	outbox := &fakeOutbox{pending: effects("a", "b", "c")}
	applier := &fakeApplier{seen: map[string]bool{"b": true}}
	d, err := New(outbox, applier, time.Second, WithBatchSize(2))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	n, err := d.Tick(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("first tick: n=%d err=%v", n, err)
	}
	n, err = d.Tick(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("second tick: n=%d err=%v", n, err)
	}
	if len(applier.order) != 3 || applier.order[0] != "a" || applier.order[2] != "c" {
		t.Fatalf("unexpected delivery order %v", applier.order)
	}
	if len(outbox.pending) != 0 {
		t.Fatalf("expected outbox drained, got %d", len(outbox.pending))
	}
	n, err = d.Tick(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("idle tick: n=%d err=%v", n, err)
	}
}

func TestTickStopsAtFirstFailure(t *testing.T) {
	outbox := &fakeOutbox{pending: effects("a", "b", "c")}
	applier := &fakeApplier{seen: map[string]bool{}, failOn: "b"}
	d, err := New(outbox, applier, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n, err := d.Tick(context.Background())
	if err == nil || n != 1 {
		t.Fatalf("expected partial delivery with error, n=%d err=%v", n, err)
	}
	if len(outbox.acked) != 1 || len(outbox.acked[0]) != 1 || outbox.acked[0][0] != "a" {
		t.Fatalf("only the delivered prefix may be acked, got %v", outbox.acked)
	}
	if len(outbox.pending) != 2 || outbox.pending[0].Key != "b" {
		t.Fatalf("failed effect must stay at the head, got %+v", outbox.pending)
	}

	applier.failOn = ""
	if n, err := d.Tick(context.Background()); err != nil || n != 2 {
		t.Fatalf("retry tick: n=%d err=%v", n, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{pending: effects("a")}
	applier := &fakeApplier{seen: map[string]bool{}}
	d, err := New(outbox, applier, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(outbox.pending) != 0 {
		t.Fatalf("expected delivery before cancellation")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, &fakeApplier{}, time.Second); err == nil {
		t.Fatalf("expected outbox to be required")
	}
	if _, err := New(&fakeOutbox{}, nil, time.Second); err == nil {
		t.Fatalf("expected applier to be required")
	}
	if _, err := New(&fakeOutbox{}, &fakeApplier{}, 0); err == nil {
		t.Fatalf("expected positive interval")
	}
}
