package grpc_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"google.golang.org/grpc/status"
)

type getRequest struct {
	Key string `cbor:"1,keyasint"`
}

type getResponse struct {
	Found     bool       `cbor:"1,keyasint"`
	Value     []byte     `cbor:"2,keyasint,omitempty"`
	Version   uint64     `cbor:"3,keyasint"`
	ExpiresAt time.Time  `cbor:"4,keyasint"`
	Err       *wireError `cbor:"15,keyasint,omitempty"`
}

type setRequest struct {
	Key   string `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
	TTLMs int64  `cbor:"3,keyasint,omitempty"`
}

type setResponse struct {
	Version uint64     `cbor:"1,keyasint"`
	Err     *wireError `cbor:"15,keyasint,omitempty"`
}

type deleteRequest struct {
	Key string `cbor:"1,keyasint"`
}

type deleteResponse struct {
	Existed bool       `cbor:"1,keyasint"`
	Err     *wireError `cbor:"15,keyasint,omitempty"`
}

type applyRequest struct {
	Message domain.ReplicationMessage `cbor:"1,keyasint"`
}

type applyResponse struct {
	Result domain.ApplyResult `cbor:"1,keyasint"`
	Err    *wireError         `cbor:"15,keyasint,omitempty"`
}

type heartbeatResponse struct {
	Ack domain.HeartbeatAck `cbor:"1,keyasint"`
	Err *wireError          `cbor:"15,keyasint,omitempty"`
}

type joinResponse struct {
	Join domain.JoinResponse `cbor:"1,keyasint"`
	Err  *wireError          `cbor:"15,keyasint,omitempty"`
}

type nodeRequest struct {
	NodeID string `cbor:"1,keyasint"`
}

type ackResponse struct {
	Err *wireError `cbor:"15,keyasint,omitempty"`
}

type membershipResponse struct {
	Vote domain.MembershipVote `cbor:"1,keyasint"`
	Err  *wireError            `cbor:"15,keyasint,omitempty"`
}

type topologyRequest struct{}

type topologyResponse struct {
	Topology domain.Topology `cbor:"1,keyasint"`
	Err      *wireError      `cbor:"15,keyasint,omitempty"`
}

type rangeResponse struct {
	Messages []domain.ReplicationMessage `cbor:"1,keyasint,omitempty"`
	Err      *wireError                  `cbor:"15,keyasint,omitempty"`
}

type digestResponse struct {
	Digest domain.DigestResponse `cbor:"1,keyasint"`
	Err    *wireError            `cbor:"15,keyasint,omitempty"`
}

// Error codes carried in responses.
const (
	codeNotOwner           = "not_owner"
	codeReplicationTimeout = "replication_timeout"
	codeCapacityExceeded   = "capacity_exceeded"
	codeMembershipRejected = "membership_rejected"
	codeInvalidKey         = "invalid_key"
	codeUnavailable        = "unavailable"
	codeInternal           = "internal"
)

// wireError is a domain error as it travels in a response body.
type wireError struct {
	Code     string `cbor:"1,keyasint"`
	Message  string `cbor:"2,keyasint,omitempty"`
	Version  uint64 `cbor:"3,keyasint,omitempty"`
	Key      string `cbor:"4,keyasint,omitempty"`
	Node     string `cbor:"5,keyasint,omitempty"`
	Owner    string `cbor:"6,keyasint,omitempty"`
	Epoch    uint64 `cbor:"7,keyasint,omitempty"`
	Acked    int    `cbor:"8,keyasint,omitempty"`
	Required int    `cbor:"9,keyasint,omitempty"`
	Size     int64  `cbor:"10,keyasint,omitempty"`
	Capacity int64  `cbor:"11,keyasint,omitempty"`
}

// encodeError converts a service error into a response envelope. Context
// errors are returned as gRPC status errors instead so the caller's
// deadline handling sees them.
func encodeError(err error) (*wireError, error) {
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, status.FromContextError(err).Err()
	}

	w := &wireError{Code: codeInternal, Message: err.Error()}

	var notOwner *domain.NotOwnerError
	var timeout *domain.ReplicationTimeoutError
	var capacity *domain.CapacityExceededError
	switch {
	case errors.As(err, &notOwner):
		w.Code = codeNotOwner
		w.Key, w.Node, w.Owner, w.Epoch = notOwner.Key, notOwner.NodeID, notOwner.Owner, notOwner.Epoch
	case errors.As(err, &timeout):
		w.Code = codeReplicationTimeout
		w.Key, w.Version, w.Acked, w.Required = timeout.Key, timeout.Version, timeout.Acked, timeout.Required
	case errors.As(err, &capacity):
		w.Code = codeCapacityExceeded
		w.Key, w.Size, w.Capacity = capacity.Key, capacity.Size, capacity.Capacity
	case errors.Is(err, domain.ErrMembershipRejected):
		w.Code = codeMembershipRejected
	case errors.Is(err, domain.ErrInvalidKey):
		w.Code = codeInvalidKey
	case errors.Is(err, domain.ErrNodeUnavailable), errors.Is(err, domain.ErrUnavailable):
		w.Code = codeUnavailable
	}
	return w, nil
}

// decodeError rebuilds the typed domain error of an envelope.
func decodeError(w *wireError, nodeID string) error {
	if w == nil {
		return nil
	}
	switch w.Code {
	case codeNotOwner:
		return &domain.NotOwnerError{Key: w.Key, NodeID: w.Node, Owner: w.Owner, Epoch: w.Epoch}
	case codeReplicationTimeout:
		return &domain.ReplicationTimeoutError{Key: w.Key, Version: w.Version, Acked: w.Acked, Required: w.Required}
	case codeCapacityExceeded:
		return &domain.CapacityExceededError{Key: w.Key, Size: w.Size, Capacity: w.Capacity}
	case codeMembershipRejected:
		return fmt.Errorf("%w: %s", domain.ErrMembershipRejected, w.Message)
	case codeInvalidKey:
		return fmt.Errorf("%w: %s", domain.ErrInvalidKey, w.Message)
	case codeUnavailable:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, w.Message)
	default:
		return fmt.Errorf("node %s: %s", nodeID, w.Message)
	}
}
