package hashring

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateNode = errors.New("node already on ring")
	ErrNodeNotFound  = errors.New("node not on ring")
)

// DuplicateNodeError is returned by AddNode when the node ID is already present.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateNode, e.NodeID)
}

func (e *DuplicateNodeError) Is(target error) bool {
	return target == ErrDuplicateNode
}

// NodeNotFoundError is returned when a ring operation names an unknown node.
type NodeNotFoundError struct {
	NodeID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNodeNotFound, e.NodeID)
}

func (e *NodeNotFoundError) Is(target error) bool {
	return target == ErrNodeNotFound
}

// Node represents a physical node placed on the ring.
type Node struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

func (n Node) String() string {
	return fmt.Sprintf("%s@%s", n.ID, n.Addr)
}

// Token is one virtual node position on the ring.
// It points to a physical Node.
type Token struct {
	Hash   uint64
	NodeID string
}
