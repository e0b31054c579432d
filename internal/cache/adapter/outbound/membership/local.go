// Package membership provides the gates that serialize cluster membership
// changes: an in-process gate, a Redis lock and an etcd mutex.
package membership

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
)

// LocalGate serializes changes between nodes that share one process.
type LocalGate struct {
	sem   chan struct{}
	epoch atomic.Uint64
}

func NewLocalGate() *LocalGate {
	return &LocalGate{sem: make(chan struct{}, 1)}
}

var _ port.MembershipGate = (*LocalGate)(nil)

func (g *LocalGate) Acquire(ctx context.Context) (port.MembershipLease, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &localLease{gate: g, epoch: g.epoch.Add(1)}, nil
}

type localLease struct {
	gate  *LocalGate
	epoch uint64
	once  sync.Once
}

func (l *localLease) Epoch() uint64 {
	return l.epoch
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() { <-l.gate.sem })
	return nil
}
