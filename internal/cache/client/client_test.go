package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/service/mocks"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
)

var seed = hashring.Node{ID: "seed:7000", Addr: "seed:7000"}

func testTopology(epoch uint64, ids ...string) domain.Topology {
	topo := domain.Topology{Epoch: epoch, VirtualNodes: 32}
	for _, id := range ids {
		topo.Members = append(topo.Members, domain.NodeDescriptor{
			NodeID:  id,
			Address: id + ":7000",
			State:   domain.StateActive,
			Term:    1,
		})
	}
	return topo
}

func newTestClient(t *testing.T, nodes *mocks.MockNodeClient, topo domain.Topology) *CacheClient {
	t.Helper()
	c, err := New(Config{
		Seeds:             []string{seed.Addr},
		ReplicationFactor: 2,
		Attempts:          2,
		BackoffInitialMS:  1,
		BackoffMaxMS:      1,
	}, nodes)
	require.NoError(t, err)
	c.install(topo)
	return c
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{ReplicationFactor: 2}, nil)
	assert.Error(t, err)
	_, err = New(Config{Seeds: []string{"a:1"}}, nil)
	assert.Error(t, err)
}

func TestCacheClient_RefreshAdoptsHighestEpoch(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)

	c, err := New(Config{Seeds: []string{"s1:7000", "s2:7000", "s3:7000"}, ReplicationFactor: 2}, nodes)
	require.NoError(t, err)

	nodes.EXPECT().Topology(gomock.Any(), hashring.Node{ID: "s1:7000", Addr: "s1:7000"}).Return(testTopology(3, "A"), nil)
	nodes.EXPECT().Topology(gomock.Any(), hashring.Node{ID: "s2:7000", Addr: "s2:7000"}).Return(testTopology(5, "A", "B"), nil)
	nodes.EXPECT().Topology(gomock.Any(), hashring.Node{ID: "s3:7000", Addr: "s3:7000"}).
		Return(domain.Topology{}, &domain.NodeUnavailableError{NodeID: "s3:7000"})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, uint64(5), c.Topology().Epoch)
	assert.Len(t, c.Topology().Members, 2)

	// an older answer never replaces a newer view
	c.install(testTopology(4, "A"))
	assert.Equal(t, uint64(5), c.Topology().Epoch)
}

func TestCacheClient_RefreshFailsWhenNobodyAnswers(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	c, err := New(Config{Seeds: []string{seed.Addr}, ReplicationFactor: 1}, nodes)
	require.NoError(t, err)

	nodes.EXPECT().Topology(gomock.Any(), seed).Return(domain.Topology{}, errors.New("connection refused"))
	err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestCacheClient_GetRoutesToPrimary(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	topo := testTopology(2, "A", "B", "C")
	c := newTestClient(t, nodes, topo)

	owners := topo.Ring().Owners("user:1", 2)
	nodes.EXPECT().Get(gomock.Any(), owners[0], "user:1").
		Return(domain.Entry{Key: "user:1", Value: []byte("v"), Version: 9}, true, nil)

	value, found, err := c.Get(context.Background(), "user:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
}

func TestCacheClient_GetFallsBackToReplica(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	topo := testTopology(2, "A", "B", "C")
	c := newTestClient(t, nodes, topo)

	owners := topo.Ring().Owners("user:1", 2)
	gomock.InOrder(
		nodes.EXPECT().Get(gomock.Any(), owners[0], "user:1").
			Return(domain.Entry{}, false, &domain.NodeUnavailableError{NodeID: owners[0].ID}),
		nodes.EXPECT().Get(gomock.Any(), owners[1], "user:1").
			Return(domain.Entry{Value: []byte("replica")}, true, nil),
	)

	value, found, err := c.Get(context.Background(), "user:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("replica"), value)
}

func TestCacheClient_NotOwnerRefreshesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	old := testTopology(2, "A", "B")
	c := newTestClient(t, nodes, old)

	next := testTopology(3, "A", "B", "C")
	stalePrimary := old.Ring().Owners("k", 2)[0]
	newPrimary := next.Ring().Owners("k", 2)[0]

	gomock.InOrder(
		nodes.EXPECT().Set(gomock.Any(), stalePrimary, "k", []byte("v"), time.Minute).
			Return(uint64(0), &domain.NotOwnerError{Key: "k", NodeID: stalePrimary.ID, Epoch: 3}),
		nodes.EXPECT().Set(gomock.Any(), newPrimary, "k", []byte("v"), time.Minute).Return(uint64(12), nil),
	)
	nodes.EXPECT().Topology(gomock.Any(), gomock.Any()).Return(next, nil).AnyTimes()

	version, err := c.Set(context.Background(), "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), version)
	assert.Equal(t, uint64(3), c.Topology().Epoch)
}

func TestCacheClient_RepeatedNotOwnerIsUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	topo := testTopology(2, "A", "B")
	c := newTestClient(t, nodes, topo)

	notOwner := &domain.NotOwnerError{Key: "k", NodeID: "A", Epoch: 2}
	nodes.EXPECT().Delete(gomock.Any(), gomock.Any(), "k").Return(false, notOwner).Times(2)
	nodes.EXPECT().Topology(gomock.Any(), gomock.Any()).Return(topo, nil).AnyTimes()

	_, err := c.Delete(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotOwner)
	assert.Contains(t, err.Error(), domain.ErrNotOwner.Error())
}

func TestCacheClient_NotOwnerWithFailedRefreshIsUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	topo := testTopology(2, "A", "B")
	c := newTestClient(t, nodes, topo)

	notOwner := &domain.NotOwnerError{Key: "k", NodeID: "A", Epoch: 2}
	nodes.EXPECT().Delete(gomock.Any(), gomock.Any(), "k").Return(false, notOwner).Times(1)
	nodes.EXPECT().Topology(gomock.Any(), gomock.Any()).
		Return(domain.Topology{}, errors.New("connection refused")).AnyTimes()

	_, err := c.Delete(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotOwner)
}

func TestCacheClient_ExhaustedIsUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	topo := testTopology(2, "A", "B", "C")
	c := newTestClient(t, nodes, topo)

	primary := topo.Ring().Owners("k", 2)[0]
	nodes.EXPECT().Set(gomock.Any(), primary, "k", gomock.Any(), time.Duration(0)).
		Return(uint64(0), &domain.NodeUnavailableError{NodeID: primary.ID}).Times(2)

	_, err := c.Set(context.Background(), "k", []byte("v"), 0)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestCacheClient_PassesThroughDomainErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	topo := testTopology(2, "A", "B")
	c := newTestClient(t, nodes, topo)

	timeout := &domain.ReplicationTimeoutError{Key: "k", Version: 4, Acked: 1, Required: 2}
	nodes.EXPECT().Set(gomock.Any(), gomock.Any(), "k", gomock.Any(), gomock.Any()).Return(uint64(0), timeout)

	_, err := c.Set(context.Background(), "k", []byte("v"), 0)
	assert.ErrorIs(t, err, domain.ErrReplicationTimeout)

	_, _, err = c.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestCacheClient_RespectsCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeClient(ctrl)
	topo := testTopology(2, "A", "B")
	c := newTestClient(t, nodes, topo)

	ctx, cancel := context.WithCancel(context.Background())
	nodes.EXPECT().Get(gomock.Any(), gomock.Any(), "k").
		DoAndReturn(func(context.Context, hashring.Node, string) (domain.Entry, bool, error) {
			cancel()
			return domain.Entry{}, false, &domain.NodeUnavailableError{NodeID: "A"}
		})

	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
