package grpc_handler

import (
	"context"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"google.golang.org/grpc"
)

// Server exposes a port.CacheService as the cache.v1.CacheNode gRPC service.
type Server struct {
	service port.CacheService
}

// NewServer creates a new gRPC server.
func NewServer(service port.CacheService) *Server {
	return &Server{
		service: service,
	}
}

// Register attaches the node service to a gRPC server.
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&cacheNodeServiceDesc, s)
}

var _ cacheNodeServer = (*Server)(nil)

func (s *Server) Get(ctx context.Context, req *getRequest) (*getResponse, error) {
	entry, found, err := s.service.Get(ctx, req.Key)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &getResponse{
		Found:     found,
		Value:     entry.Value,
		Version:   entry.Version,
		ExpiresAt: entry.ExpiresAt,
		Err:       werr,
	}, nil
}

func (s *Server) Set(ctx context.Context, req *setRequest) (*setResponse, error) {
	ttl := time.Duration(req.TTLMs) * time.Millisecond
	version, err := s.service.Set(ctx, req.Key, req.Value, ttl)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	// a replication timeout still carries the version that stands locally
	return &setResponse{Version: version, Err: werr}, nil
}

func (s *Server) Delete(ctx context.Context, req *deleteRequest) (*deleteResponse, error) {
	existed, err := s.service.Delete(ctx, req.Key)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &deleteResponse{Existed: existed, Err: werr}, nil
}

func (s *Server) ApplyReplicated(ctx context.Context, req *applyRequest) (*applyResponse, error) {
	result, err := s.service.ApplyReplicated(ctx, req.Message)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &applyResponse{Result: result, Err: werr}, nil
}

func (s *Server) Heartbeat(ctx context.Context, req *domain.Heartbeat) (*heartbeatResponse, error) {
	ack, err := s.service.Heartbeat(ctx, *req)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &heartbeatResponse{Ack: ack, Err: werr}, nil
}

func (s *Server) Join(ctx context.Context, req *domain.JoinRequest) (*joinResponse, error) {
	resp, err := s.service.Join(ctx, *req)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &joinResponse{Join: resp, Err: werr}, nil
}

func (s *Server) Activate(ctx context.Context, req *nodeRequest) (*ackResponse, error) {
	werr, serr := encodeError(s.service.Activate(ctx, req.NodeID))
	if serr != nil {
		return nil, serr
	}
	return &ackResponse{Err: werr}, nil
}

func (s *Server) Leave(ctx context.Context, req *nodeRequest) (*ackResponse, error) {
	werr, serr := encodeError(s.service.Leave(ctx, req.NodeID))
	if serr != nil {
		return nil, serr
	}
	return &ackResponse{Err: werr}, nil
}

func (s *Server) Membership(ctx context.Context, req *domain.MembershipProposal) (*membershipResponse, error) {
	vote, err := s.service.Membership(ctx, *req)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &membershipResponse{Vote: vote, Err: werr}, nil
}

func (s *Server) Topology(ctx context.Context, _ *topologyRequest) (*topologyResponse, error) {
	topo, err := s.service.Topology(ctx)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &topologyResponse{Topology: topo, Err: werr}, nil
}

func (s *Server) FetchRange(ctx context.Context, req *domain.RangeRequest) (*rangeResponse, error) {
	msgs, err := s.service.FetchRange(ctx, *req)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &rangeResponse{Messages: msgs, Err: werr}, nil
}

func (s *Server) Digest(ctx context.Context, req *domain.DigestRequest) (*digestResponse, error) {
	resp, err := s.service.Digest(ctx, *req)
	werr, serr := encodeError(err)
	if serr != nil {
		return nil, serr
	}
	return &digestResponse{Digest: resp, Err: werr}, nil
}
