package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCounter(t *testing.T) {
	assert.True(t, IsCounter(Evictions))
	assert.True(t, IsCounter(ReplicationDegraded))
	assert.False(t, IsCounter(RingSize))
	assert.False(t, IsCounter(ReplicationLagVersions))
}

func TestInmemSink(t *testing.T) {
	sink, inm, err := NewInmemSink("cache", InmemConfig{IntervalMS: 60000, RetainMS: 60000})
	require.NoError(t, err)

	sink.Emit(Evictions, 2, map[string]string{"segment": "1"})
	sink.Emit(Evictions, 3, map[string]string{"segment": "1"})
	sink.Emit(RingSize, 5, nil)

	data := inm.Data()
	require.NotEmpty(t, data)
	interval := data[len(data)-1]

	var counted float64
	for _, c := range interval.Counters {
		if c.Name == "cache.evictions_total" {
			counted += c.Sum
		}
	}
	assert.Equal(t, float64(5), counted)

	gauge, ok := interval.Gauges["cache.ring_size"]
	require.True(t, ok)
	assert.Equal(t, float32(5), gauge.Value)
}

func TestSetup(t *testing.T) {
	for _, typ := range []SinkType{SinkNop, SinkLog, SinkInmem} {
		sink, stop, err := Setup("cache", Config{Sink: typ})
		require.NoError(t, err, typ)
		assert.NotNil(t, sink)
		stop()
	}

	_, _, err := Setup("cache", Config{Sink: "statsd"})
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	tags := map[string]string{"node": "a"}
	r.Emit(CacheHits, 1, tags)
	r.Emit(CacheHits, 2, nil)
	tags["node"] = "mutated"

	assert.Equal(t, float64(3), r.Sum(CacheHits))
	last, ok := r.Last(CacheHits)
	assert.True(t, ok)
	assert.Equal(t, float64(2), last)
	assert.Equal(t, "a", r.Points()[0].Tags["node"])

	_, ok = r.Last(CacheMisses)
	assert.False(t, ok)
}
