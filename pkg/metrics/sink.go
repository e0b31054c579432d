package metrics

import (
	"sort"
	"strings"
	"sync"

	gometrics "github.com/hashicorp/go-metrics"

	"github.com/anthanhphan/gosdk/logger"
)

// Metric names emitted by the cache.
const (
	CacheHits              = "cache_hits_total"
	CacheMisses            = "cache_misses_total"
	Evictions              = "evictions_total"
	CapacityRejections     = "capacity_rejections_total"
	StoreBytes             = "store_bytes"
	StoreEntries           = "store_entries"
	ReplicationDegraded    = "replication_degraded_total"
	ReplicationTimeouts    = "replication_timeouts_total"
	ReplicationAbandoned   = "replication_abandoned_total"
	ReplicationStale       = "replication_stale_total"
	ReplicationLagVersions = "replication_lag_versions"
	AntiEntropyRepairs     = "anti_entropy_repairs_total"
	RingSize               = "ring_size"
	RingEpoch              = "ring_epoch"
	RebalancePushed        = "rebalance_pushed_total"
	NodeStateChanges       = "node_state_changes_total"
	LoaderFills            = "loader_fills_total"
	IDClockFallbacks       = "id_clock_fallbacks_total"
)

// Sink receives counters and gauges. Names ending in "_total" are counters,
// everything else is a gauge.
type Sink interface {
	Emit(name string, value float64, tags map[string]string)
}

// IsCounter reports whether name follows the counter naming convention.
func IsCounter(name string) bool {
	return strings.HasSuffix(name, "_total")
}

// Nop discards every metric.
type Nop struct{}

func (Nop) Emit(string, float64, map[string]string) {}

// LogSink writes each metric as a debug log line.
type LogSink struct{}

func (LogSink) Emit(name string, value float64, tags map[string]string) {
	kv := make([]interface{}, 0, 4+2*len(tags))
	kv = append(kv, "metric", name, "value", value)
	for _, k := range sortedKeys(tags) {
		kv = append(kv, k, tags[k])
	}
	logger.Debugw("metric", kv...)
}

// GoMetricsSink forwards to a hashicorp/go-metrics instance.
type GoMetricsSink struct {
	m *gometrics.Metrics
}

// NewGoMetricsSink wraps an existing go-metrics instance.
func NewGoMetricsSink(m *gometrics.Metrics) *GoMetricsSink {
	return &GoMetricsSink{m: m}
}

// NewInmemSink builds a go-metrics pipeline backed by an in-memory sink.
// The returned InmemSink can be dumped with DefaultInmemSignal.
func NewInmemSink(service string, cfg InmemConfig) (*GoMetricsSink, *gometrics.InmemSink, error) {
	inm := gometrics.NewInmemSink(cfg.interval(), cfg.retain())

	conf := gometrics.DefaultConfig(service)
	conf.EnableHostname = false
	conf.EnableRuntimeMetrics = cfg.RuntimeMetrics

	m, err := gometrics.New(conf, inm)
	if err != nil {
		return nil, nil, err
	}
	return NewGoMetricsSink(m), inm, nil
}

func (s *GoMetricsSink) Emit(name string, value float64, tags map[string]string) {
	key := []string{name}
	labels := toLabels(tags)
	if IsCounter(name) {
		s.m.IncrCounterWithLabels(key, float32(value), labels)
		return
	}
	s.m.SetGaugeWithLabels(key, float32(value), labels)
}

func toLabels(tags map[string]string) []gometrics.Label {
	if len(tags) == 0 {
		return nil
	}
	labels := make([]gometrics.Label, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		labels = append(labels, gometrics.Label{Name: k, Value: tags[k]})
	}
	return labels
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Point is one recorded emission.
type Point struct {
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder keeps every emission in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	points []Point
}

func (r *Recorder) Emit(name string, value float64, tags map[string]string) {
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		cp[k] = v
	}
	r.mu.Lock()
	r.points = append(r.points, Point{Name: name, Value: value, Tags: cp})
	r.mu.Unlock()
}

// Sum adds up every value emitted under name.
func (r *Recorder) Sum(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, p := range r.points {
		if p.Name == name {
			total += p.Value
		}
	}
	return total
}

// Last returns the most recent value emitted under name.
func (r *Recorder) Last(name string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.points) - 1; i >= 0; i-- {
		if r.points[i].Name == name {
			return r.points[i].Value, true
		}
	}
	return 0, false
}

// Points returns a copy of everything recorded.
func (r *Recorder) Points() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Point, len(r.points))
	copy(out, r.points)
	return out
}
