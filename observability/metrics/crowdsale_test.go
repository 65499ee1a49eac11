package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCrowdsaleMetricsRecordOutcomes(t *testing.T) {
	m := Crowdsale()
	if m != Crowdsale() {
		t.Fatalf("registry must be a singleton")
	}

	before := testutil.ToFloat64(m.OperationsVec().WithLabelValues("withdraw", "ok"))
	m.ObserveOperation("withdraw", "ok", 10*time.Millisecond)
	if got := testutil.ToFloat64(m.OperationsVec().WithLabelValues("withdraw", "ok")); got != before+1 {
		t.Fatalf("expected operation counter %v, got %v", before+1, got)
	}

	m.ObserveOperation("", "", time.Millisecond)
	if got := testutil.ToFloat64(m.OperationsVec().WithLabelValues("unknown", "unknown")); got < 1 {
		t.Fatalf("empty labels must default to unknown")
	}

	m.SetTotals(big.NewInt(24_000_000), big.NewInt(1_200_000), nil)
	if got := testutil.ToFloat64(m.TotalsGauge().WithLabelValues("base")); got != 24_000_000 {
		t.Fatalf("unexpected base total %v", got)
	}
	if got := testutil.ToFloat64(m.TotalsGauge().WithLabelValues("secondary_usd")); got != 0 {
		t.Fatalf("nil total must publish zero, got %v", got)
	}

	m.ObserveEffect("issue", "applied")
	if got := testutil.ToFloat64(m.EffectsVec().WithLabelValues("issue", "applied")); got < 1 {
		t.Fatalf("effect counter not incremented")
	}
}

func TestCrowdsaleMetricsNilSafe(t *testing.T) {
	var m *CrowdsaleMetrics
	m.ObserveOperation("init", "ok", time.Second)
	m.SetTotals(big.NewInt(1), big.NewInt(1), big.NewInt(1))
	m.ObserveEffect("transfer", "failed")
	m.SetBacklog(3)
	m.ObserveRatePublish("ok")
	m.ObserveRoundingDust("finalize", big.NewInt(1))
}
