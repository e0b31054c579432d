package port

import (
	"context"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
)

//go:generate mockgen -destination=../service/mocks/peer_mock.go -package=mocks -source=peer.go

// NodeClient is the client-facing surface of a remote cache node.
type NodeClient interface {
	Get(ctx context.Context, target hashring.Node, key string) (domain.Entry, bool, error)
	Set(ctx context.Context, target hashring.Node, key string, value []byte, ttl time.Duration) (uint64, error)
	Delete(ctx context.Context, target hashring.Node, key string) (bool, error)
	Topology(ctx context.Context, target hashring.Node) (domain.Topology, error)
}

// PeerClient is everything a node calls on its peers.
type PeerClient interface {
	NodeClient

	ApplyReplicated(ctx context.Context, target hashring.Node, msg domain.ReplicationMessage) (domain.ApplyResult, error)
	Heartbeat(ctx context.Context, target hashring.Node, hb domain.Heartbeat) (domain.HeartbeatAck, error)
	Join(ctx context.Context, target hashring.Node, req domain.JoinRequest) (domain.JoinResponse, error)
	Activate(ctx context.Context, target hashring.Node, nodeID string) error
	Leave(ctx context.Context, target hashring.Node, nodeID string) error
	Membership(ctx context.Context, target hashring.Node, proposal domain.MembershipProposal) (domain.MembershipVote, error)
	FetchRange(ctx context.Context, target hashring.Node, req domain.RangeRequest) ([]domain.ReplicationMessage, error)
	Digest(ctx context.Context, target hashring.Node, req domain.DigestRequest) (domain.DigestResponse, error)

	// Forget drops cached connection state for a peer that left.
	Forget(target hashring.Node)
}
