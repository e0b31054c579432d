package domain

import (
	"fmt"
	"sort"

	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
)

// NodeState is a node's position in the membership state machine.
type NodeState string

const (
	StateJoining   NodeState = "joining"
	StateActive    NodeState = "active"
	StateLeaving   NodeState = "leaving"
	StateDeparted  NodeState = "departed"
	StateSuspected NodeState = "suspected"
	StateDead      NodeState = "dead"
)

// OnRing reports whether a node in this state holds tokens on the ring.
func (s NodeState) OnRing() bool {
	return s == StateActive || s == StateLeaving || s == StateSuspected
}

// allowed lists the legal transitions. Departed and Dead are terminal; the
// node ID may rejoin later through Joining.
var allowed = map[NodeState][]NodeState{
	"":             {StateJoining},
	StateJoining:   {StateActive, StateDeparted},
	StateActive:    {StateLeaving, StateSuspected, StateDead},
	StateSuspected: {StateActive, StateDead},
	StateLeaving:   {StateDeparted, StateDead},
	StateDeparted:  {StateJoining},
	StateDead:      {StateJoining},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to NodeState) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NodeDescriptor is the coordinator's record of one member.
type NodeDescriptor struct {
	NodeID  string    `cbor:"1,keyasint" json:"node_id"`
	Address string    `cbor:"2,keyasint" json:"address"`
	State   NodeState `cbor:"3,keyasint" json:"state"`
	Term    uint64    `cbor:"4,keyasint" json:"term"`
}

// RingNode converts the descriptor to its ring identity.
func (n NodeDescriptor) RingNode() hashring.Node {
	return hashring.Node{ID: n.NodeID, Addr: n.Address}
}

// Topology is the committed cluster membership at one epoch. A ring is
// rebuilt deterministically from it.
type Topology struct {
	Epoch        uint64           `cbor:"1,keyasint" json:"epoch"`
	VirtualNodes int              `cbor:"2,keyasint" json:"virtual_nodes"`
	Members      []NodeDescriptor `cbor:"3,keyasint" json:"members"`
}

// Clone returns a copy that shares nothing with t.
func (t Topology) Clone() Topology {
	c := t
	c.Members = make([]NodeDescriptor, len(t.Members))
	copy(c.Members, t.Members)
	return c
}

// Member looks up a node by ID.
func (t Topology) Member(id string) (NodeDescriptor, bool) {
	for _, m := range t.Members {
		if m.NodeID == id {
			return m, true
		}
	}
	return NodeDescriptor{}, false
}

// InState returns members in any of the given states.
func (t Topology) InState(states ...NodeState) []NodeDescriptor {
	var out []NodeDescriptor
	for _, m := range t.Members {
		for _, s := range states {
			if m.State == s {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Ring builds the ring snapshot of this topology. Nodes in down keep their
// tokens but are skipped for ownership.
func (t Topology) Ring(down ...string) *hashring.Snapshot {
	var nodes []hashring.Node
	for _, m := range t.Members {
		if m.State.OnRing() {
			nodes = append(nodes, m.RingNode())
		}
	}
	return hashring.Build(nodes, t.VirtualNodes, down)
}

// ChangeKind names a membership change.
type ChangeKind string

const (
	ChangeJoin     ChangeKind = "join"
	ChangeActivate ChangeKind = "activate"
	ChangeLeave    ChangeKind = "leave"
	ChangeDepart   ChangeKind = "depart"
	ChangeDead     ChangeKind = "dead"
)

// TargetState is the state a change moves its node into.
func (k ChangeKind) TargetState() NodeState {
	switch k {
	case ChangeJoin:
		return StateJoining
	case ChangeActivate:
		return StateActive
	case ChangeLeave:
		return StateLeaving
	case ChangeDepart:
		return StateDeparted
	case ChangeDead:
		return StateDead
	default:
		return ""
	}
}

// MembershipChange is one serialized change to the topology.
type MembershipChange struct {
	Epoch    uint64         `cbor:"1,keyasint" json:"epoch"`
	Kind     ChangeKind     `cbor:"2,keyasint" json:"kind"`
	Node     NodeDescriptor `cbor:"3,keyasint" json:"node"`
	Proposer string         `cbor:"4,keyasint" json:"proposer"`
}

// Validate checks that c is a legal next step from t.
func (t Topology) Validate(c MembershipChange) error {
	if c.Epoch <= t.Epoch {
		return fmt.Errorf("%w: epoch %d not after %d", ErrMembershipRejected, c.Epoch, t.Epoch)
	}
	to := c.Kind.TargetState()
	if to == "" {
		return fmt.Errorf("%w: unknown change kind %q", ErrMembershipRejected, c.Kind)
	}
	var from NodeState
	if m, ok := t.Member(c.Node.NodeID); ok {
		from = m.State
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s cannot go from %q to %q", ErrMembershipRejected, c.Node.NodeID, from, to)
	}
	return nil
}

// Apply returns the topology after c. Changes at or below the current epoch
// are ignored, so replaying a change is a no-op.
func (t Topology) Apply(c MembershipChange) (Topology, bool, error) {
	if c.Epoch <= t.Epoch {
		return t, false, nil
	}
	if err := t.Validate(c); err != nil {
		return t, false, err
	}

	next := t.Clone()
	next.Epoch = c.Epoch
	to := c.Kind.TargetState()

	idx := -1
	for i, m := range next.Members {
		if m.NodeID == c.Node.NodeID {
			idx = i
			break
		}
	}

	switch {
	case to == StateDeparted || to == StateDead:
		if idx >= 0 {
			next.Members = append(next.Members[:idx], next.Members[idx+1:]...)
		}
	case idx >= 0:
		m := next.Members[idx]
		m.State = to
		if c.Node.Address != "" {
			m.Address = c.Node.Address
		}
		if c.Node.Term > m.Term {
			m.Term = c.Node.Term
		}
		next.Members[idx] = m
	default:
		n := c.Node
		n.State = to
		next.Members = append(next.Members, n)
	}

	sort.Slice(next.Members, func(i, j int) bool {
		return next.Members[i].NodeID < next.Members[j].NodeID
	})
	return next, true, nil
}
