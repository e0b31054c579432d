package port

import (
	"context"
)

//go:generate mockgen -destination=../service/mocks/membership_mock.go -package=mocks -source=membership.go

// MembershipGate serializes membership changes cluster-wide. It is backed by
// an external coordination service.
type MembershipGate interface {
	// Acquire blocks until this node may propose the next change.
	Acquire(ctx context.Context) (MembershipLease, error)
}

// MembershipLease is held while one change is proposed and committed.
type MembershipLease interface {
	// Epoch is a number issued by the gate, increasing across leases.
	Epoch() uint64
	Release(ctx context.Context) error
}

// MembershipEvents receives discovery and failure evidence from gossip.
type MembershipEvents interface {
	PeerJoined(nodeID, address string)
	PeerLeft(nodeID string)
}
