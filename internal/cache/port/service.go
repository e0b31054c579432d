package port

import (
	"context"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
)

// CacheService is the node-side business logic behind the node RPC.
type CacheService interface {
	Get(ctx context.Context, key string) (domain.Entry, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (uint64, error)
	Delete(ctx context.Context, key string) (bool, error)

	ApplyReplicated(ctx context.Context, msg domain.ReplicationMessage) (domain.ApplyResult, error)

	Heartbeat(ctx context.Context, hb domain.Heartbeat) (domain.HeartbeatAck, error)
	Join(ctx context.Context, req domain.JoinRequest) (domain.JoinResponse, error)
	Activate(ctx context.Context, nodeID string) error
	Leave(ctx context.Context, nodeID string) error
	Membership(ctx context.Context, proposal domain.MembershipProposal) (domain.MembershipVote, error)
	Topology(ctx context.Context) (domain.Topology, error)

	FetchRange(ctx context.Context, req domain.RangeRequest) ([]domain.ReplicationMessage, error)
	Digest(ctx context.Context, req domain.DigestRequest) (domain.DigestResponse, error)
}
