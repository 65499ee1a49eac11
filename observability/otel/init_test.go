package otel

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , broken, =skip,tenant=sale ")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "sale" {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "crowdsaled"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected service name to be required")
	}
}

func TestSamplerRatio(t *testing.T) {
	if got := sampler(0).Description(); got != sdktrace.ParentBased(sdktrace.AlwaysSample()).Description() {
		t.Fatalf("zero ratio must sample everything, got %s", got)
	}
	if got := sampler(0.25).Description(); got == sampler(1).Description() {
		t.Fatalf("fractional ratio must differ from always-on, got %s", got)
	}
}
