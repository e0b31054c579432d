package membership

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
)

type EtcdConfig struct {
	Endpoints     []string `json:"endpoints" yaml:"endpoints"`
	Prefix        string   `json:"prefix" yaml:"prefix"`
	SessionTTLSec int      `json:"session_ttl_sec" yaml:"session_ttl_sec"`
	DialTimeoutMS int      `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
}

// NewEtcdClient dials the configured endpoints.
func NewEtcdClient(cfg EtcdConfig) (*clientv3.Client, error) {
	timeout := time.Duration(cfg.DialTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
	})
}

// EtcdGate takes a concurrency.Mutex for each change. The epoch is the etcd
// revision at which the lock was acquired.
type EtcdGate struct {
	client *clientv3.Client
	prefix string
	ttl    int

	mu      sync.Mutex
	session *concurrency.Session
}

func NewEtcdGate(client *clientv3.Client, cfg EtcdConfig) *EtcdGate {
	g := &EtcdGate{client: client, prefix: cfg.Prefix, ttl: cfg.SessionTTLSec}
	if g.prefix == "" {
		g.prefix = "/cache/membership/lock"
	}
	if g.ttl <= 0 {
		g.ttl = 30
	}
	return g
}

var _ port.MembershipGate = (*EtcdGate)(nil)

// currentSession returns a live session, replacing one whose lease expired.
func (g *EtcdGate) currentSession(ctx context.Context) (*concurrency.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil {
		select {
		case <-g.session.Done():
			g.session = nil
		default:
			return g.session, nil
		}
	}
	// grant under the caller's deadline; keep-alives then run on the client context
	lease, err := g.client.Grant(ctx, int64(g.ttl))
	if err != nil {
		return nil, fmt.Errorf("etcd lease: %w", err)
	}
	s, err := concurrency.NewSession(g.client, concurrency.WithLease(lease.ID))
	if err != nil {
		return nil, fmt.Errorf("etcd session: %w", err)
	}
	g.session = s
	return s, nil
}

func (g *EtcdGate) Acquire(ctx context.Context) (port.MembershipLease, error) {
	s, err := g.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	m := concurrency.NewMutex(s, g.prefix)
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("acquire membership lock: %w", err)
	}
	return &etcdLease{mutex: m, epoch: uint64(m.Header().Revision)}, nil
}

// Close revokes the session lease, releasing any lock still held.
func (g *EtcdGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	err := g.session.Close()
	g.session = nil
	return err
}

type etcdLease struct {
	mutex *concurrency.Mutex
	epoch uint64
}

func (l *etcdLease) Epoch() uint64 {
	return l.epoch
}

func (l *etcdLease) Release(ctx context.Context) error {
	return l.mutex.Unlock(ctx)
}
