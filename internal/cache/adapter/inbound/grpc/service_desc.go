package grpc_handler

import (
	"context"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"google.golang.org/grpc"
)

const serviceName = "cache.v1.CacheNode"

const (
	methodGet             = "Get"
	methodSet             = "Set"
	methodDelete          = "Delete"
	methodApplyReplicated = "ApplyReplicated"
	methodHeartbeat       = "Heartbeat"
	methodJoin            = "Join"
	methodActivate        = "Activate"
	methodLeave           = "Leave"
	methodMembership      = "Membership"
	methodTopology        = "Topology"
	methodFetchRange      = "FetchRange"
	methodDigest          = "Digest"
)

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// cacheNodeServer is the server side of the node RPC.
type cacheNodeServer interface {
	Get(context.Context, *getRequest) (*getResponse, error)
	Set(context.Context, *setRequest) (*setResponse, error)
	Delete(context.Context, *deleteRequest) (*deleteResponse, error)
	ApplyReplicated(context.Context, *applyRequest) (*applyResponse, error)
	Heartbeat(context.Context, *domain.Heartbeat) (*heartbeatResponse, error)
	Join(context.Context, *domain.JoinRequest) (*joinResponse, error)
	Activate(context.Context, *nodeRequest) (*ackResponse, error)
	Leave(context.Context, *nodeRequest) (*ackResponse, error)
	Membership(context.Context, *domain.MembershipProposal) (*membershipResponse, error)
	Topology(context.Context, *topologyRequest) (*topologyResponse, error)
	FetchRange(context.Context, *domain.RangeRequest) (*rangeResponse, error)
	Digest(context.Context, *domain.DigestRequest) (*digestResponse, error)
}

// unary builds the method descriptor of one unary call.
func unary[Req, Resp any](method string, call func(cacheNodeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(cacheNodeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(cacheNodeServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var cacheNodeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*cacheNodeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodGet, cacheNodeServer.Get),
		unary(methodSet, cacheNodeServer.Set),
		unary(methodDelete, cacheNodeServer.Delete),
		unary(methodApplyReplicated, cacheNodeServer.ApplyReplicated),
		unary(methodHeartbeat, cacheNodeServer.Heartbeat),
		unary(methodJoin, cacheNodeServer.Join),
		unary(methodActivate, cacheNodeServer.Activate),
		unary(methodLeave, cacheNodeServer.Leave),
		unary(methodMembership, cacheNodeServer.Membership),
		unary(methodTopology, cacheNodeServer.Topology),
		unary(methodFetchRange, cacheNodeServer.FetchRange),
		unary(methodDigest, cacheNodeServer.Digest),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cache/v1/node",
}
