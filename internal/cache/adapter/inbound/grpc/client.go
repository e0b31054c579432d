package grpc_handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// ClientConfig holds per-RPC default timeouts and breaker settings. A
// deadline already on the caller's context wins over the defaults.
type ClientConfig struct {
	RequestTimeoutMS     int `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	ReplicationTimeoutMS int `json:"replication_timeout_ms" yaml:"replication_timeout_ms"`
	MembershipTimeoutMS  int `json:"membership_timeout_ms" yaml:"membership_timeout_ms"`
	RangeTimeoutMS       int `json:"range_timeout_ms" yaml:"range_timeout_ms"`
	BreakerFailures      int `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerOpenMS        int `json:"breaker_open_ms" yaml:"breaker_open_ms"`
}

// DefaultClientConfig returns the timeouts used when none are configured.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeoutMS:     2000,
		ReplicationTimeoutMS: 1000,
		MembershipTimeoutMS:  3000,
		RangeTimeoutMS:       30000,
		BreakerFailures:      3,
		BreakerOpenMS:        10000,
	}
}

func ms(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Millisecond
}

// ClientOption customizes a ClientAdapter.
type ClientOption func(*ClientAdapter)

// WithDialOptions appends gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(c *ClientAdapter) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

// ClientAdapter implements port.PeerClient over gRPC.
type ClientAdapter struct {
	cfg      ClientConfig
	dialOpts []grpc.DialOption

	mu       sync.RWMutex
	conns    map[string]*grpc.ClientConn
	breakers *resilience.BreakerSet
}

// NewClientAdapter creates a new node client.
func NewClientAdapter(cfg ClientConfig, opts ...ClientOption) *ClientAdapter {
	def := DefaultClientConfig()
	c := &ClientAdapter{
		cfg:   cfg,
		conns: make(map[string]*grpc.ClientConn),
		breakers: resilience.NewBreakerSet(resilience.CircuitBreakerConfig{
			FailureThreshold:  cfg.BreakerFailures,
			SuccessThreshold:  2,
			OpenTimeout:       ms(cfg.BreakerOpenMS, def.BreakerOpenMS),
			HalfOpenMaxFlight: 1,
			IsFailure: func(err error) bool {
				return errors.Is(err, domain.ErrNodeUnavailable)
			},
			OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
				logger.Infow("Peer circuit changed", "target", name, "from", from, "to", to)
			},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ port.PeerClient = (*ClientAdapter)(nil)

func (c *ClientAdapter) requestTimeout() time.Duration {
	return ms(c.cfg.RequestTimeoutMS, DefaultClientConfig().RequestTimeoutMS)
}

func (c *ClientAdapter) replicationTimeout() time.Duration {
	return ms(c.cfg.ReplicationTimeoutMS, DefaultClientConfig().ReplicationTimeoutMS)
}

func (c *ClientAdapter) membershipTimeout() time.Duration {
	return ms(c.cfg.MembershipTimeoutMS, DefaultClientConfig().MembershipTimeoutMS)
}

func (c *ClientAdapter) rangeTimeout() time.Duration {
	return ms(c.cfg.RangeTimeoutMS, DefaultClientConfig().RangeTimeoutMS)
}

func (c *ClientAdapter) getConn(addr string) (*grpc.ClientConn, error) {
	c.mu.RLock()
	conn, ok := c.conns[addr]
	c.mu.RUnlock()
	if ok {
		return conn, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, c.dialOpts...)
	newConn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.conns[addr] = newConn
	return newConn, nil
}

func (c *ClientAdapter) Get(ctx context.Context, target hashring.Node, key string) (domain.Entry, bool, error) {
	var resp getResponse
	if err := c.invoke(ctx, target, methodGet, c.requestTimeout(), &getRequest{Key: key}, &resp); err != nil {
		return domain.Entry{}, false, err
	}
	if resp.Err != nil {
		return domain.Entry{}, false, decodeError(resp.Err, target.ID)
	}
	if !resp.Found {
		return domain.Entry{}, false, nil
	}
	return domain.Entry{
		Key:       key,
		Value:     resp.Value,
		Version:   resp.Version,
		ExpiresAt: resp.ExpiresAt,
	}, true, nil
}

// Set returns the assigned version even when it also returns a replication
// timeout, because the write stands on the primary.
func (c *ClientAdapter) Set(ctx context.Context, target hashring.Node, key string, value []byte, ttl time.Duration) (uint64, error) {
	req := &setRequest{Key: key, Value: value, TTLMs: ttl.Milliseconds()}
	if ttl > 0 && req.TTLMs == 0 {
		req.TTLMs = 1
	}
	var resp setResponse
	if err := c.invoke(ctx, target, methodSet, c.requestTimeout(), req, &resp); err != nil {
		return 0, err
	}
	return resp.Version, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Delete(ctx context.Context, target hashring.Node, key string) (bool, error) {
	var resp deleteResponse
	if err := c.invoke(ctx, target, methodDelete, c.requestTimeout(), &deleteRequest{Key: key}, &resp); err != nil {
		return false, err
	}
	return resp.Existed, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Topology(ctx context.Context, target hashring.Node) (domain.Topology, error) {
	var resp topologyResponse
	if err := c.invoke(ctx, target, methodTopology, c.requestTimeout(), &topologyRequest{}, &resp); err != nil {
		return domain.Topology{}, err
	}
	return resp.Topology, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) ApplyReplicated(ctx context.Context, target hashring.Node, msg domain.ReplicationMessage) (domain.ApplyResult, error) {
	var resp applyResponse
	if err := c.invoke(ctx, target, methodApplyReplicated, c.replicationTimeout(), &applyRequest{Message: msg}, &resp); err != nil {
		return 0, err
	}
	return resp.Result, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Heartbeat(ctx context.Context, target hashring.Node, hb domain.Heartbeat) (domain.HeartbeatAck, error) {
	var resp heartbeatResponse
	if err := c.invoke(ctx, target, methodHeartbeat, c.requestTimeout(), &hb, &resp); err != nil {
		return domain.HeartbeatAck{}, err
	}
	return resp.Ack, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Join(ctx context.Context, target hashring.Node, req domain.JoinRequest) (domain.JoinResponse, error) {
	var resp joinResponse
	if err := c.invoke(ctx, target, methodJoin, c.membershipTimeout(), &req, &resp); err != nil {
		return domain.JoinResponse{}, err
	}
	return resp.Join, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Activate(ctx context.Context, target hashring.Node, nodeID string) error {
	var resp ackResponse
	if err := c.invoke(ctx, target, methodActivate, c.membershipTimeout(), &nodeRequest{NodeID: nodeID}, &resp); err != nil {
		return err
	}
	return decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Leave(ctx context.Context, target hashring.Node, nodeID string) error {
	var resp ackResponse
	if err := c.invoke(ctx, target, methodLeave, c.membershipTimeout(), &nodeRequest{NodeID: nodeID}, &resp); err != nil {
		return err
	}
	return decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Membership(ctx context.Context, target hashring.Node, proposal domain.MembershipProposal) (domain.MembershipVote, error) {
	var resp membershipResponse
	if err := c.invoke(ctx, target, methodMembership, c.membershipTimeout(), &proposal, &resp); err != nil {
		return domain.MembershipVote{}, err
	}
	return resp.Vote, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) FetchRange(ctx context.Context, target hashring.Node, req domain.RangeRequest) ([]domain.ReplicationMessage, error) {
	var resp rangeResponse
	if err := c.invoke(ctx, target, methodFetchRange, c.rangeTimeout(), &req, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, decodeError(resp.Err, target.ID)
}

func (c *ClientAdapter) Digest(ctx context.Context, target hashring.Node, req domain.DigestRequest) (domain.DigestResponse, error) {
	var resp digestResponse
	if err := c.invoke(ctx, target, methodDigest, c.requestTimeout(), &req, &resp); err != nil {
		return domain.DigestResponse{}, err
	}
	return resp.Digest, decodeError(resp.Err, target.ID)
}

// Forget drops the connection and breaker of a peer that left.
func (c *ClientAdapter) Forget(target hashring.Node) {
	c.breakers.Forget(target.Addr)
	c.dropConn(target.Addr)
}

func (c *ClientAdapter) invoke(ctx context.Context, target hashring.Node, method string, timeout time.Duration, req, resp any) error {
	callCtx, cancel := c.withDefaultTimeout(ctx, timeout)
	defer cancel()

	return c.withBreaker(callCtx, target, method, func(execCtx context.Context, conn *grpc.ClientConn) error {
		return conn.Invoke(execCtx, fullMethod(method), req, resp)
	})
}

func (c *ClientAdapter) withBreaker(ctx context.Context, target hashring.Node, op string, fn func(context.Context, *grpc.ClientConn) error) error {
	breaker := c.breakers.Get(target.Addr)
	err := breaker.Execute(ctx, func(execCtx context.Context) error {
		conn, err := c.getConn(target.Addr)
		if err != nil {
			return &domain.NodeUnavailableError{NodeID: target.ID, Addr: target.Addr, Err: err}
		}
		return classifyRPCErr(target, normalizeRPCErr(execCtx, fn(execCtx, conn)))
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		logger.Debugw("Node RPC short-circuited", "op", op, "target", target.ID, "error", err.Error())
		return &domain.NodeUnavailableError{NodeID: target.ID, Addr: target.Addr, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	logger.Warnw("Node RPC failed", "op", op, "target", target.ID, "addr", target.Addr, "error", err.Error())
	if errors.Is(err, domain.ErrNodeUnavailable) {
		c.dropConn(target.Addr)
	}
	return err
}

func (c *ClientAdapter) withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *ClientAdapter) dropConn(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		_ = conn.Close()
		delete(c.conns, addr)
	}
}

// Close closes all connections.
func (c *ClientAdapter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, conn := range c.conns {
		_ = conn.Close()
		delete(c.conns, addr)
	}
	return nil
}

func normalizeRPCErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return context.Canceled
	}
	if errors.Is(err, io.EOF) && ctx != nil && errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	if status.Code(err) == codes.DeadlineExceeded {
		return context.DeadlineExceeded
	}
	return err
}

// classifyRPCErr turns transport failures into NodeUnavailableError. Calls
// the peer rejected outright, such as an unknown method, stay plain errors.
func classifyRPCErr(target hashring.Node, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unimplemented, codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("node %s rejected call: %w", target.ID, err)
	default:
		return &domain.NodeUnavailableError{NodeID: target.ID, Addr: target.Addr, Err: err}
	}
}
