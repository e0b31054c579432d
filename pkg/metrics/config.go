package metrics

import (
	"fmt"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

type SinkType string

const (
	SinkInmem SinkType = "inmem"
	SinkLog   SinkType = "log"
	SinkNop   SinkType = "nop"
)

type InmemConfig struct {
	IntervalMS     int  `json:"interval_ms" yaml:"interval_ms"`
	RetainMS       int  `json:"retain_ms" yaml:"retain_ms"`
	RuntimeMetrics bool `json:"runtime_metrics" yaml:"runtime_metrics"`
}

func (c InmemConfig) interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c InmemConfig) retain() time.Duration {
	return time.Duration(c.RetainMS) * time.Millisecond
}

type Config struct {
	Sink  SinkType    `json:"sink" yaml:"sink"`
	Inmem InmemConfig `json:"inmem" yaml:"inmem"`
}

func DefaultConfig() Config {
	return Config{
		Sink: SinkInmem,
		Inmem: InmemConfig{
			IntervalMS: 10000,
			RetainMS:   60000,
		},
	}
}

// Setup builds the configured sink. For the in-memory sink it also installs
// the SIGUSR1 dump handler; stop releases it.
func Setup(service string, cfg Config) (sink Sink, stop func(), err error) {
	switch cfg.Sink {
	case SinkNop:
		return Nop{}, func() {}, nil
	case SinkLog:
		return LogSink{}, func() {}, nil
	case SinkInmem, "":
		if cfg.Inmem.IntervalMS <= 0 {
			cfg.Inmem.IntervalMS = DefaultConfig().Inmem.IntervalMS
		}
		if cfg.Inmem.RetainMS <= 0 {
			cfg.Inmem.RetainMS = DefaultConfig().Inmem.RetainMS
		}
		s, inm, err := NewInmemSink(service, cfg.Inmem)
		if err != nil {
			return nil, nil, err
		}
		sig := gometrics.DefaultInmemSignal(inm)
		return s, sig.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics sink %q", cfg.Sink)
	}
}
