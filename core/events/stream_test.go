package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStreamBacklogAfterCursor(t *testing.T) {
	stream := NewStream(2)
	stream.Emit(testEvent("a"))
	stream.Emit(testEvent("b"))
	stream.Emit(testEvent("c"))

	_, cancel, backlog := stream.Subscribe(context.Background(), "")
	defer cancel()
	if len(backlog) != 2 || backlog[0].Cursor != "2" || backlog[1].Event.EventType() != "c" {
		t.Fatalf("history must keep the newest records, got %+v", backlog)
	}

	_, cancel2, backlog := stream.Subscribe(context.Background(), "2")
	defer cancel2()
	if len(backlog) != 1 || backlog[0].Sequence != 3 {
		t.Fatalf("expected only records after cursor, got %+v", backlog)
	}
}

func TestStreamDeliversLiveRecords(t *testing.T) {
	stream := NewStream(0)
	ctx, cancel := context.WithCancel(context.Background())
	updates, _, backlog := stream.Subscribe(ctx, "")
	if len(backlog) != 0 {
		t.Fatalf("unexpected backlog %+v", backlog)
	}
	stream.Emit(testEvent("live"))
	select {
	case rec := <-updates:
		if rec.Event.EventType() != "live" || rec.Sequence != 1 {
			t.Fatalf("unexpected record %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for record")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatalf("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed")
	}
}

func TestMultiSkipsNil(t *testing.T) {
	var a, b []string
	emitter := Multi(
		EmitterFunc(func(evt Event) { a = append(a, evt.EventType()) }),
		nil,
		EmitterFunc(func(evt Event) { b = append(b, evt.EventType()) }),
	)
	emitter.Emit(testEvent("x"))
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected fan-out to both sinks, got %v %v", a, b)
	}
}

func TestStreamEmitConcurrentWithCancel(t *testing.T) {
	stream := NewStream(8)
	for i := 0; i < 2000; i++ {
		updates, cancel, _ := stream.Subscribe(context.Background(), "")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			stream.Emit(testEvent("race"))
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
		wg.Wait()
		for range updates {
		}
	}
	_, cancel, backlog := stream.Subscribe(context.Background(), "")
	defer cancel()
	if len(backlog) != 8 || backlog[7].Sequence != 2000 {
		t.Fatalf("unexpected history after concurrent emits: %d records", len(backlog))
	}
}
