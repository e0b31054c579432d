package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

const (
	defaultRefreshInterval = 5 * time.Second
	defaultAttempts        = 3
	topologyTimeout        = 2 * time.Second
)

type Config struct {
	// Seeds are node RPC addresses used until a topology is known and
	// whenever every known member fails to answer.
	Seeds             []string `json:"seeds" yaml:"seeds"`
	ReplicationFactor int      `json:"replication_factor" yaml:"replication_factor"`
	RefreshIntervalMS int      `json:"refresh_interval_ms" yaml:"refresh_interval_ms"`
	Attempts          int      `json:"attempts" yaml:"attempts"`
	BackoffInitialMS  int      `json:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffMaxMS      int      `json:"backoff_max_ms" yaml:"backoff_max_ms"`
}

func (c Config) Validate() error {
	if len(c.Seeds) == 0 {
		return errors.New("at least one seed is required")
	}
	if c.ReplicationFactor <= 0 {
		return errors.New("replication factor is required")
	}
	return nil
}

func (c Config) refreshInterval() time.Duration {
	if c.RefreshIntervalMS <= 0 {
		return defaultRefreshInterval
	}
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

func (c Config) attempts() int {
	if c.Attempts <= 0 {
		return defaultAttempts
	}
	return c.Attempts
}

func (c Config) backoff() resilience.Backoff {
	b := resilience.DefaultBackoff
	if c.BackoffInitialMS > 0 {
		b.Initial = time.Duration(c.BackoffInitialMS) * time.Millisecond
	}
	if c.BackoffMaxMS > 0 {
		b.Max = time.Duration(c.BackoffMaxMS) * time.Millisecond
	}
	return b
}

// CacheClient routes key operations to their owners using a locally cached
// ring view.
type CacheClient struct {
	cfg     Config
	nodes   port.NodeClient
	backoff resilience.Backoff

	mu   sync.RWMutex
	topo domain.Topology
	ring *hashring.Snapshot

	refreshes singleflight.Group
	stop      context.CancelFunc
	done      chan struct{}
}

// New builds a client. Call Refresh or Start before the first request.
func New(cfg Config, nodes port.NodeClient) (*CacheClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	return &CacheClient{
		cfg:     cfg,
		nodes:   nodes,
		backoff: cfg.backoff(),
		ring:    domain.Topology{}.Ring(),
	}, nil
}

// Start refreshes the topology once and then every refresh interval until
// Close.
func (c *CacheClient) Start(ctx context.Context) error {
	err := c.Refresh(ctx)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.stop = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.refreshInterval())
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(loopCtx); err != nil && loopCtx.Err() == nil {
					logger.Warnw("Topology refresh failed", "error", err.Error())
				}
			}
		}
	}()
	return err
}

// Close stops the refresh loop.
func (c *CacheClient) Close() {
	if c.stop == nil {
		return
	}
	c.stop()
	<-c.done
}

// Topology returns the ring view the client currently routes with.
func (c *CacheClient) Topology() domain.Topology {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topo.Clone()
}

func (c *CacheClient) owners(key string) []hashring.Node {
	c.mu.RLock()
	ring := c.ring
	c.mu.RUnlock()
	return ring.Owners(key, c.cfg.ReplicationFactor)
}

// Refresh polls known members and seeds and adopts the answer with the
// highest epoch. Concurrent callers share one poll.
func (c *CacheClient) Refresh(ctx context.Context) error {
	ch := c.refreshes.DoChan("topology", func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *CacheClient) refresh(ctx context.Context) error {
	targets := c.pollTargets()

	var (
		mu      sync.Mutex
		best    domain.Topology
		found   bool
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, topologyTimeout)
			defer cancel()
			topo, err := c.nodes.Topology(tctx, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				logger.Debugw("Failed to poll topology from node", "addr", target.Addr, "error", err.Error())
				return nil
			}
			if !found || topo.Epoch > best.Epoch {
				best, found = topo, true
			}
			return nil
		})
	}
	_ = g.Wait()

	if !found {
		if lastErr == nil {
			lastErr = errors.New("no topology targets")
		}
		return fmt.Errorf("%w: topology refresh: %v", domain.ErrUnavailable, lastErr)
	}
	c.install(best)
	return nil
}

// pollTargets is every known member plus the seeds, deduplicated by address.
func (c *CacheClient) pollTargets() []hashring.Node {
	c.mu.RLock()
	members := c.topo.Members
	c.mu.RUnlock()

	seen := make(map[string]struct{}, len(members)+len(c.cfg.Seeds))
	targets := make([]hashring.Node, 0, len(members)+len(c.cfg.Seeds))
	for _, m := range members {
		if !m.State.OnRing() {
			continue
		}
		if _, ok := seen[m.Address]; ok {
			continue
		}
		seen[m.Address] = struct{}{}
		targets = append(targets, m.RingNode())
	}
	for _, s := range c.cfg.Seeds {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		targets = append(targets, hashring.Node{ID: s, Addr: s})
	}
	return targets
}

func (c *CacheClient) install(topo domain.Topology) {
	c.mu.Lock()
	if topo.Epoch <= c.topo.Epoch && c.topo.Epoch != 0 {
		c.mu.Unlock()
		return
	}
	prev := c.topo.Epoch
	c.topo = topo.Clone()
	c.ring = topo.Ring()
	c.mu.Unlock()

	logger.Infow("Adopted cluster topology", "epoch", topo.Epoch, "previous_epoch", prev, "members", len(topo.Members))
}

// Get reads key from its primary, falling back to the other owners when a
// node is unreachable.
func (c *CacheClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := c.do(ctx, key, true, func(ctx context.Context, target hashring.Node) error {
		entry, ok, err := c.nodes.Get(ctx, target, key)
		if err != nil {
			return err
		}
		value, found = entry.Value, ok
		return nil
	})
	return value, found, err
}

// Set writes key through its primary and returns the assigned version. A
// ttl of zero stores the value without expiry.
func (c *CacheClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (uint64, error) {
	var version uint64
	err := c.do(ctx, key, false, func(ctx context.Context, target hashring.Node) error {
		v, err := c.nodes.Set(ctx, target, key, value, ttl)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	return version, err
}

// Delete removes key through its primary and reports whether it existed.
func (c *CacheClient) Delete(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := c.do(ctx, key, false, func(ctx context.Context, target hashring.Node) error {
		ok, err := c.nodes.Delete(ctx, target, key)
		if err != nil {
			return err
		}
		existed = ok
		return nil
	})
	return existed, err
}

// do runs call against the owners of key. A NotOwner answer refreshes the
// ring and retries once. Unreachable nodes are retried with backoff; reads
// move on to the next owner first. ErrUnavailable is returned once every
// attempt is spent.
func (c *CacheClient) do(ctx context.Context, key string, read bool, call func(context.Context, hashring.Node) error) error {
	if key == "" {
		return domain.ErrInvalidKey
	}

	var (
		lastErr   error
		refreshed bool
	)
	for attempt := 0; attempt < c.cfg.attempts(); attempt++ {
		if attempt > 0 && !resilience.SleepContext(ctx, c.backoff.Delay(attempt-1)) {
			return ctx.Err()
		}

		owners := c.owners(key)
		if len(owners) == 0 {
			lastErr = errors.New("ring is empty")
			if err := c.Refresh(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if !read {
			owners = owners[:1]
		}

	targets:
		for _, target := range owners {
			err := call(ctx, target)
			switch {
			case err == nil:
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, domain.ErrNotOwner):
				if refreshed {
					return fmt.Errorf("%w: key %q: %v", domain.ErrUnavailable, key, err)
				}
				refreshed = true
				logger.Debugw("Stale ring view, refreshing", "key", key, "node", target.ID, "error", err.Error())
				if rerr := c.Refresh(ctx); rerr != nil {
					return fmt.Errorf("%w: key %q: %v", domain.ErrUnavailable, key, err)
				}
				attempt--
				lastErr = err
				break targets
			case unavailable(err):
				lastErr = err
				continue
			default:
				return err
			}
		}
	}

	if lastErr == nil {
		lastErr = domain.ErrUnavailable
	}
	return fmt.Errorf("%w: key %q: %v", domain.ErrUnavailable, key, lastErr)
}

func unavailable(err error) bool {
	return errors.Is(err, domain.ErrNodeUnavailable) ||
		errors.Is(err, domain.ErrUnavailable) ||
		errors.Is(err, resilience.ErrCircuitOpen)
}
