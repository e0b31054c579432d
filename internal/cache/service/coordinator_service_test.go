package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/service/mocks"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
)

func expectLease(ctrl *gomock.Controller, gate *mocks.MockMembershipGate, epoch uint64) {
	lease := mocks.NewMockMembershipLease(ctrl)
	lease.EXPECT().Epoch().Return(epoch).AnyTimes()
	lease.EXPECT().Release(gomock.Any()).Return(nil)
	gate.EXPECT().Acquire(gomock.Any()).Return(lease, nil)
}

func TestCoordinatorService_Membership(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	peers := mocks.NewMockPeerClient(ctrl)
	svc := newTestService(t, testConfig("A"), newTestStore(t), peers, mocks.NewMockMembershipGate(ctrl), activeTopology(5, "A", "B"))
	c := svc.coordinator

	joinC := domain.MembershipChange{Epoch: 6, Kind: domain.ChangeJoin, Node: domain.NodeDescriptor{NodeID: "C", Address: "C"}}

	tests := []struct {
		name     string
		proposal domain.MembershipProposal
		accepted bool
	}{
		{"PrepareValid", domain.MembershipProposal{Phase: domain.PhasePrepare, Change: joinC, BaseEpoch: 5}, true},
		{"PrepareStaleBase", domain.MembershipProposal{Phase: domain.PhasePrepare, Change: joinC, BaseEpoch: 4}, false},
		{"PrepareIllegal", domain.MembershipProposal{Phase: domain.PhasePrepare, BaseEpoch: 5,
			Change: domain.MembershipChange{Epoch: 6, Kind: domain.ChangeActivate, Node: domain.NodeDescriptor{NodeID: "Z"}}}, false},
		{"PrepareAheadOfUs", domain.MembershipProposal{Phase: domain.PhasePrepare, Change: joinC, BaseEpoch: 9}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vote, err := c.membership(context.Background(), tt.proposal)
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, vote.Accepted, vote.Reason)
			assert.Equal(t, uint64(5), vote.Epoch)
		})
	}

	t.Run("CommitInstallsNewer", func(t *testing.T) {
		next := activeTopology(6, "A")
		next.VirtualNodes = 32
		peers.EXPECT().Forget(hashring.Node{ID: "B", Addr: "B"})

		vote, err := c.membership(context.Background(), domain.MembershipProposal{Phase: domain.PhaseCommit, Topology: next})
		require.NoError(t, err)
		assert.True(t, vote.Accepted)
		assert.Equal(t, uint64(6), c.epoch())
		assert.Equal(t, 1, svc.RingSnapshot().Len())

		// replaying an older commit changes nothing
		_, err = c.membership(context.Background(), domain.MembershipProposal{Phase: domain.PhaseCommit, Topology: activeTopology(5, "A", "B")})
		require.NoError(t, err)
		assert.Equal(t, uint64(6), c.epoch())
	})

	t.Run("UnknownPhase", func(t *testing.T) {
		_, err := c.membership(context.Background(), domain.MembershipProposal{Phase: "vote"})
		assert.ErrorIs(t, err, domain.ErrMembershipRejected)
	})
}

func TestCoordinatorService_ProposeNeedsMajority(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	peers := mocks.NewMockPeerClient(ctrl)
	gate := mocks.NewMockMembershipGate(ctrl)
	svc := newTestService(t, testConfig("A"), newTestStore(t), peers, gate, activeTopology(3, "A", "B", "C"))

	expectLease(ctrl, gate, 10)
	peers.EXPECT().Membership(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.MembershipVote{}, &domain.NodeUnavailableError{NodeID: "x", Err: errors.New("down")}).Times(2)

	_, err := svc.coordinator.propose(context.Background(), domain.ChangeJoin, domain.NodeDescriptor{NodeID: "D", Address: "D"})
	assert.ErrorIs(t, err, domain.ErrMembershipRejected)
	assert.Equal(t, uint64(3), svc.coordinator.epoch(), "rejected change is not applied")
}

func TestCoordinatorService_ProposeCommitsWithMajority(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	peers := mocks.NewMockPeerClient(ctrl)
	gate := mocks.NewMockMembershipGate(ctrl)
	svc := newTestService(t, testConfig("A"), newTestStore(t), peers, gate, activeTopology(3, "A", "B", "C"))

	expectLease(ctrl, gate, 10)
	// B accepts, C is down: 2 of 3
	peers.EXPECT().Membership(gomock.Any(), hashring.Node{ID: "B", Addr: "B"}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ hashring.Node, p domain.MembershipProposal) (domain.MembershipVote, error) {
			return domain.MembershipVote{Accepted: true, Epoch: 3}, nil
		}).Times(2)
	peers.EXPECT().Membership(gomock.Any(), hashring.Node{ID: "C", Addr: "C"}, gomock.Any()).
		Return(domain.MembershipVote{}, &domain.NodeUnavailableError{NodeID: "C"}).Times(2)
	peers.EXPECT().Membership(gomock.Any(), hashring.Node{ID: "D", Addr: "D"}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ hashring.Node, p domain.MembershipProposal) (domain.MembershipVote, error) {
			assert.Equal(t, domain.PhaseCommit, p.Phase)
			_, ok := p.Topology.Member("D")
			assert.True(t, ok)
			return domain.MembershipVote{Accepted: true, Epoch: 10}, nil
		})

	topo, err := svc.coordinator.propose(context.Background(), domain.ChangeJoin, domain.NodeDescriptor{NodeID: "D", Address: "D"})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), topo.Epoch, "gate epoch wins over local epoch")
	m, ok := topo.Member("D")
	require.True(t, ok)
	assert.Equal(t, domain.StateJoining, m.State)
	assert.Equal(t, uint64(10), svc.coordinator.epoch())
	assert.Equal(t, 3, svc.RingSnapshot().Len(), "joining nodes hold no tokens")
}

func TestCoordinatorService_JoinIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	topo := activeTopology(4, "A")
	topo.Members = append(topo.Members, domain.NodeDescriptor{NodeID: "B", Address: "B", State: domain.StateJoining, Term: 2})
	svc := newTestService(t, testConfig("A"), newTestStore(t), mocks.NewMockPeerClient(ctrl), mocks.NewMockMembershipGate(ctrl), topo)

	// no gate expectation: a retried join must not propose again
	resp, err := svc.Join(context.Background(), domain.JoinRequest{NodeID: "B", Address: "B", Term: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), resp.Topology.Epoch)
	assert.Len(t, resp.Tokens, 32)

	_, err = svc.Join(context.Background(), domain.JoinRequest{NodeID: "", Address: "x"})
	assert.ErrorIs(t, err, domain.ErrMembershipRejected)
}

func TestCoordinatorService_ActivateUnknownNode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := newTestService(t, testConfig("A"), newTestStore(t), mocks.NewMockPeerClient(ctrl), mocks.NewMockMembershipGate(ctrl), activeTopology(1, "A"))
	assert.ErrorIs(t, svc.Activate(context.Background(), "Z"), domain.ErrMembershipRejected)
	assert.NoError(t, svc.Activate(context.Background(), "A"), "already active")
}
