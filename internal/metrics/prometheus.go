//go:build !noprom

package metrics

import (
	"fmt"
	"net"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	dbTotal       *prom.CounterVec
	dbSeconds     *prom.HistogramVec
	toolTotal     *prom.CounterVec
	toolSeconds   *prom.HistogramVec
	queryTotal    *prom.CounterVec
	querySeconds  *prom.HistogramVec
	promotions    *prom.CounterVec
	events        *prom.CounterVec
	observerDrops prom.Counter
	poolInUse     prom.Gauge
	poolIdle      prom.Gauge
}

func (p *promRecorder) IncDBOpTotal(op string, success bool) {
	p.dbTotal.WithLabelValues(op, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveDBOpSeconds(op string, success bool, seconds float64) {
	p.dbSeconds.WithLabelValues(op, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) ObserveQuery(usedGeneration bool, seconds float64) {
	gen := fmt.Sprintf("%t", usedGeneration)
	p.queryTotal.WithLabelValues(gen).Inc()
	p.querySeconds.WithLabelValues(gen).Observe(seconds)
}

func (p *promRecorder) IncTypePromotion(trigger string) {
	p.promotions.WithLabelValues(trigger).Inc()
}

func (p *promRecorder) IncEvent(kind, phase string) {
	p.events.WithLabelValues(kind, phase).Inc()
}

func (p *promRecorder) IncObserverDrop() { p.observerDrops.Inc() }

func (p *promRecorder) ObservePoolStats(inUse, idle int) {
	p.poolInUse.Set(float64(inUse))
	p.poolIdle.Set(float64(idle))
}

func newPromRecorder() *promRecorder {
	return &promRecorder{
		dbTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "db_ops_total",
			Help: "Total number of DB operations",
		}, []string{"op", "success"}),
		dbSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "db_op_seconds",
			Help:    "DB operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of tool handler calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "tool_call_seconds",
			Help:    "Tool handler duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "success"}),
		queryTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "kg_queries_total",
			Help: "Total number of graph queries",
		}, []string{"generation"}),
		querySeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "kg_query_seconds",
			Help:    "Graph query latency in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"generation"}),
		promotions: prom.NewCounterVec(prom.CounterOpts{
			Name: "kg_type_promotions_total",
			Help: "Schema type promotions by trigger",
		}, []string{"trigger"}),
		events: prom.NewCounterVec(prom.CounterOpts{
			Name: "kg_events_total",
			Help: "Progress events emitted",
		}, []string{"kind", "phase"}),
		observerDrops: prom.NewCounter(prom.CounterOpts{
			Name: "kg_observer_drops_total",
			Help: "Observers removed after a failed delivery",
		}),
		poolInUse: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_in_use",
			Help: "Open connections currently in use",
		}),
		poolIdle: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_idle",
			Help: "Idle connections in the pool",
		}),
	}
}

func (p *promRecorder) collectors() []prom.Collector {
	return []prom.Collector{
		p.dbTotal, p.dbSeconds, p.toolTotal, p.toolSeconds,
		p.queryTotal, p.querySeconds, p.promotions, p.events,
		p.observerDrops, p.poolInUse, p.poolIdle,
	}
}

func enablePrometheus(addr string) error {
	registry := prom.NewRegistry()
	p := newPromRecorder()
	if err := registerAll(registry, p.collectors()); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	SetRecorder(p)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() { _ = http.Serve(ln, mux) }()
	return nil
}

func registerAll(reg *prom.Registry, cs []prom.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}
