package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(FixesTotal.WithLabelValues("accepted"))
	FixesTotal.WithLabelValues("accepted").Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(FixesTotal.WithLabelValues("accepted")), 1e-9)

	before = testutil.ToFloat64(SideEffectFailures.WithLabelValues(TargetBackend))
	SideEffectFailures.WithLabelValues(TargetBackend).Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(SideEffectFailures.WithLabelValues(TargetBackend)), 1e-9)
}

func TestCollectorsAreNamespaced(t *testing.T) {
	assert.Equal(t, 1, testutil.CollectAndCount(FixesDropped, "carboncounter_fixes_dropped_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(EmissionsGrams, "carboncounter_emissions_grams_total"))
}
