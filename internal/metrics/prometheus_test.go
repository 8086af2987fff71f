//go:build !noprom

package metrics

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterSum gathers reg and sums every sample of the named counter family.
func counterSum(t *testing.T, reg *prom.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func TestPromRecorder_CountsQueriesAndPromotions(t *testing.T) {
	p := newPromRecorder()
	reg := prom.NewRegistry()
	require.NoError(t, registerAll(reg, p.collectors()))

	p.ObserveQuery(true, 0.01)
	p.ObserveQuery(false, 0.02)
	p.ObserveQuery(false, 0.03)
	p.IncTypePromotion("ingest")
	p.IncTypePromotion("query")
	p.IncObserverDrop()
	p.IncEvent("query_traversal", "complete")

	assert.Equal(t, 3.0, counterSum(t, reg, "kg_queries_total"))
	assert.Equal(t, 2.0, counterSum(t, reg, "kg_type_promotions_total"))
	assert.Equal(t, 1.0, counterSum(t, reg, "kg_observer_drops_total"))
	assert.Equal(t, 1.0, counterSum(t, reg, "kg_events_total"))
}

func TestTimeOp_UsesInstalledRecorder(t *testing.T) {
	p := newPromRecorder()
	reg := prom.NewRegistry()
	require.NoError(t, registerAll(reg, p.collectors()))
	SetRecorder(p)
	defer SetRecorder(nil)

	done := TimeOp("db_test")
	done(true)
	doneTool := TimeTool("query")
	doneTool(false)

	assert.Equal(t, 1.0, counterSum(t, reg, "db_ops_total"))
	assert.Equal(t, 1.0, counterSum(t, reg, "tool_calls_total"))
}

func TestSetRecorder_NilRestoresNoop(t *testing.T) {
	SetRecorder(nil)
	assert.NotPanics(t, func() {
		Default().IncObserverDrop()
		Default().ObservePoolStats(1, 2)
	})
}
