// Package inproc connects cache services living in one process. Nodes can
// be unregistered to simulate a crash.
package inproc

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
)

var errNotRegistered = errors.New("no node registered")

// Transport routes calls to registered services by node ID.
type Transport struct {
	mu    sync.RWMutex
	nodes map[string]port.CacheService
	calls map[string]int
}

func NewTransport() *Transport {
	return &Transport{
		nodes: make(map[string]port.CacheService),
		calls: make(map[string]int),
	}
}

// Register adds or replaces a node.
func (t *Transport) Register(nodeID string, svc port.CacheService) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[nodeID] = svc
}

// Unregister removes a node so that calls to it fail as unavailable.
func (t *Transport) Unregister(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, nodeID)
}

// Calls returns how many times method reached a registered node.
func (t *Transport) Calls(method string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.calls[method]
}

func (t *Transport) lookup(ctx context.Context, target hashring.Node, method string) (port.CacheService, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	svc, ok := t.nodes[target.ID]
	if !ok {
		return nil, &domain.NodeUnavailableError{NodeID: target.ID, Addr: target.Addr, Err: errNotRegistered}
	}
	t.calls[method]++
	return svc, nil
}

// Client returns a port.PeerClient backed by t.
func (t *Transport) Client() *Client {
	return &Client{t: t}
}

// Client implements port.PeerClient over a Transport. Byte slices are
// copied in both directions so that nodes never share buffers.
type Client struct {
	t *Transport
}

var _ port.PeerClient = (*Client)(nil)

func (c *Client) Get(ctx context.Context, target hashring.Node, key string) (domain.Entry, bool, error) {
	svc, err := c.t.lookup(ctx, target, "Get")
	if err != nil {
		return domain.Entry{}, false, err
	}
	e, found, err := svc.Get(ctx, key)
	e.Value = bytes.Clone(e.Value)
	return e, found, err
}

func (c *Client) Set(ctx context.Context, target hashring.Node, key string, value []byte, ttl time.Duration) (uint64, error) {
	svc, err := c.t.lookup(ctx, target, "Set")
	if err != nil {
		return 0, err
	}
	return svc.Set(ctx, key, bytes.Clone(value), ttl)
}

func (c *Client) Delete(ctx context.Context, target hashring.Node, key string) (bool, error) {
	svc, err := c.t.lookup(ctx, target, "Delete")
	if err != nil {
		return false, err
	}
	return svc.Delete(ctx, key)
}

func (c *Client) Topology(ctx context.Context, target hashring.Node) (domain.Topology, error) {
	svc, err := c.t.lookup(ctx, target, "Topology")
	if err != nil {
		return domain.Topology{}, err
	}
	topo, err := svc.Topology(ctx)
	return topo.Clone(), err
}

func (c *Client) ApplyReplicated(ctx context.Context, target hashring.Node, msg domain.ReplicationMessage) (domain.ApplyResult, error) {
	svc, err := c.t.lookup(ctx, target, "ApplyReplicated")
	if err != nil {
		return 0, err
	}
	msg.Value = bytes.Clone(msg.Value)
	return svc.ApplyReplicated(ctx, msg)
}

func (c *Client) Heartbeat(ctx context.Context, target hashring.Node, hb domain.Heartbeat) (domain.HeartbeatAck, error) {
	svc, err := c.t.lookup(ctx, target, "Heartbeat")
	if err != nil {
		return domain.HeartbeatAck{}, err
	}
	return svc.Heartbeat(ctx, hb)
}

func (c *Client) Join(ctx context.Context, target hashring.Node, req domain.JoinRequest) (domain.JoinResponse, error) {
	svc, err := c.t.lookup(ctx, target, "Join")
	if err != nil {
		return domain.JoinResponse{}, err
	}
	resp, err := svc.Join(ctx, req)
	resp.Topology = resp.Topology.Clone()
	return resp, err
}

func (c *Client) Activate(ctx context.Context, target hashring.Node, nodeID string) error {
	svc, err := c.t.lookup(ctx, target, "Activate")
	if err != nil {
		return err
	}
	return svc.Activate(ctx, nodeID)
}

func (c *Client) Leave(ctx context.Context, target hashring.Node, nodeID string) error {
	svc, err := c.t.lookup(ctx, target, "Leave")
	if err != nil {
		return err
	}
	return svc.Leave(ctx, nodeID)
}

func (c *Client) Membership(ctx context.Context, target hashring.Node, proposal domain.MembershipProposal) (domain.MembershipVote, error) {
	svc, err := c.t.lookup(ctx, target, "Membership")
	if err != nil {
		return domain.MembershipVote{}, err
	}
	proposal.Topology = proposal.Topology.Clone()
	return svc.Membership(ctx, proposal)
}

func (c *Client) FetchRange(ctx context.Context, target hashring.Node, req domain.RangeRequest) ([]domain.ReplicationMessage, error) {
	svc, err := c.t.lookup(ctx, target, "FetchRange")
	if err != nil {
		return nil, err
	}
	msgs, err := svc.FetchRange(ctx, req)
	for i := range msgs {
		msgs[i].Value = bytes.Clone(msgs[i].Value)
	}
	return msgs, err
}

func (c *Client) Digest(ctx context.Context, target hashring.Node, req domain.DigestRequest) (domain.DigestResponse, error) {
	svc, err := c.t.lookup(ctx, target, "Digest")
	if err != nil {
		return domain.DigestResponse{}, err
	}
	return svc.Digest(ctx, req)
}

func (c *Client) Forget(hashring.Node) {}
