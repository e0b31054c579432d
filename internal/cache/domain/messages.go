package domain

// Heartbeat is sent periodically by every member to every other member.
type Heartbeat struct {
	NodeID string `cbor:"1,keyasint"`
	Term   uint64 `cbor:"2,keyasint"`
	Epoch  uint64 `cbor:"3,keyasint"`
}

// HeartbeatAck carries the receiver's epoch so a lagging sender can catch up.
type HeartbeatAck struct {
	NodeID string `cbor:"1,keyasint"`
	Term   uint64 `cbor:"2,keyasint"`
	Epoch  uint64 `cbor:"3,keyasint"`
}

// JoinRequest asks the cluster to admit a node.
type JoinRequest struct {
	NodeID  string `cbor:"1,keyasint"`
	Address string `cbor:"2,keyasint"`
	Term    uint64 `cbor:"3,keyasint"`
}

// JoinResponse lists the tokens the node will own once active, and the
// topology in which it is Joining.
type JoinResponse struct {
	Tokens   []uint64 `cbor:"1,keyasint"`
	Topology Topology `cbor:"2,keyasint"`
}

// ProposalPhase is a step of the two-phase membership protocol.
type ProposalPhase string

const (
	PhasePrepare ProposalPhase = "prepare"
	PhaseCommit  ProposalPhase = "commit"
)

// MembershipProposal is sent by the node holding the membership gate.
// Commit proposals carry the resulting topology.
type MembershipProposal struct {
	Phase     ProposalPhase    `cbor:"1,keyasint"`
	Change    MembershipChange `cbor:"2,keyasint"`
	BaseEpoch uint64           `cbor:"3,keyasint"`
	Topology  Topology         `cbor:"4,keyasint"`
}

// MembershipVote answers a proposal.
type MembershipVote struct {
	Accepted bool   `cbor:"1,keyasint"`
	Epoch    uint64 `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

// RangeRequest asks a node for entries. With Keys set, only those keys are
// returned. Otherwise every entry the requester owns under Planned is.
type RangeRequest struct {
	Requester         string   `cbor:"1,keyasint"`
	Planned           Topology `cbor:"2,keyasint"`
	ReplicationFactor int      `cbor:"3,keyasint"`
	Keys              []string `cbor:"4,keyasint,omitempty"`
}

// DigestRequest asks for Merkle hashes, or bucket contents, over the keys
// whose primary is Primary. Exactly one of Indices or Buckets is set.
type DigestRequest struct {
	Primary string  `cbor:"1,keyasint"`
	Epoch   uint64  `cbor:"2,keyasint"`
	Indices []int32 `cbor:"3,keyasint,omitempty"`
	Buckets []int32 `cbor:"4,keyasint,omitempty"`
}

// DigestResponse answers a DigestRequest.
type DigestResponse struct {
	Hashes []string       `cbor:"1,keyasint,omitempty"`
	Keys   []VersionedKey `cbor:"2,keyasint,omitempty"`
}
