package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Registrations.WithLabelValues(OutcomeSuccess))
	Registrations.WithLabelValues(OutcomeSuccess).Inc()
	after := testutil.ToFloat64(Registrations.WithLabelValues(OutcomeSuccess))

	if after-before != 1 {
		t.Errorf("registrations_total{outcome=success} moved by %v, want 1", after-before)
	}
}

func TestReapedAddsCounts(t *testing.T) {
	before := testutil.ToFloat64(Reaped.WithLabelValues("pending"))
	Reaped.WithLabelValues("pending").Add(3)

	if got := testutil.ToFloat64(Reaped.WithLabelValues("pending")) - before; got != 3 {
		t.Errorf("reaped_total{kind=pending} moved by %v, want 3", got)
	}
}
