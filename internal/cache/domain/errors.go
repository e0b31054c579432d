package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotOwner           = errors.New("node does not own key")
	ErrReplicationTimeout = errors.New("replication quorum not reached")
	ErrStaleVersion       = errors.New("stale version")
	ErrNodeUnavailable    = errors.New("node unavailable")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrUnavailable        = errors.New("cache unavailable")
	ErrMembershipRejected = errors.New("membership change rejected")
	ErrNotFound           = errors.New("key not found")
	ErrInvalidKey         = errors.New("invalid key")
)

// NotOwnerError is returned when a request reaches a node that is not the
// owner of the key under its current ring view.
type NotOwnerError struct {
	Key    string
	NodeID string
	Owner  string
	Epoch  uint64
}

func (e *NotOwnerError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("%v: key %q on %s (epoch %d)", ErrNotOwner, e.Key, e.NodeID, e.Epoch)
	}
	return fmt.Sprintf("%v: key %q on %s, owner %s (epoch %d)", ErrNotOwner, e.Key, e.NodeID, e.Owner, e.Epoch)
}

func (e *NotOwnerError) Is(target error) bool {
	return target == ErrNotOwner
}

// ReplicationTimeoutError reports a write that stands locally but did not
// reach its write quorum in time.
type ReplicationTimeoutError struct {
	Key      string
	Version  uint64
	Acked    int
	Required int
}

func (e *ReplicationTimeoutError) Error() string {
	return fmt.Sprintf("%v: key %q version %d acked %d/%d", ErrReplicationTimeout, e.Key, e.Version, e.Acked, e.Required)
}

func (e *ReplicationTimeoutError) Is(target error) bool {
	return target == ErrReplicationTimeout
}

// NodeUnavailableError wraps a transport failure talking to a node.
type NodeUnavailableError struct {
	NodeID string
	Addr   string
	Err    error
}

func (e *NodeUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s (%s)", ErrNodeUnavailable, e.NodeID, e.Addr)
	}
	return fmt.Sprintf("%v: %s (%s): %v", ErrNodeUnavailable, e.NodeID, e.Addr, e.Err)
}

func (e *NodeUnavailableError) Is(target error) bool {
	return target == ErrNodeUnavailable
}

func (e *NodeUnavailableError) Unwrap() error {
	return e.Err
}

// CapacityExceededError is returned when an entry cannot be admitted even
// after an eviction sweep.
type CapacityExceededError struct {
	Key      string
	Size     int64
	Capacity int64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("%v: key %q needs %d bytes, capacity %d", ErrCapacityExceeded, e.Key, e.Size, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
