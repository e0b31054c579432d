package gossip

import (
	"net"
	"sync"
	"testing"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
)

type recordedEvents struct {
	mu     sync.Mutex
	joined map[string]string
	left   []string
}

func (r *recordedEvents) PeerJoined(id, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joined == nil {
		r.joined = map[string]string{}
	}
	r.joined[id] = addr
}

func (r *recordedEvents) PeerLeft(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, id)
}

func TestMeta_RoundTrip(t *testing.T) {
	data, err := encodeMeta(7000)
	assert.NoError(t, err)
	assert.Equal(t, 7000, decodeMeta(data))
	assert.Equal(t, 0, decodeMeta(nil))
	assert.Equal(t, 0, decodeMeta([]byte("{broken")))
}

func TestAdapter_NodeMetaRespectsLimit(t *testing.T) {
	a := &Adapter{rpcPort: 7000}
	assert.NotEmpty(t, a.NodeMeta(512))
	assert.Nil(t, a.NodeMeta(2))
}

func TestAdapter_ForwardsEvents(t *testing.T) {
	ev := &recordedEvents{}
	a := &Adapter{nodeID: "A", events: ev}

	meta, _ := encodeMeta(7001)
	peer := &memberlist.Node{Name: "B", Addr: net.ParseIP("10.0.0.2"), Port: 7946, Meta: meta}
	a.NotifyJoin(peer)
	a.NotifyJoin(&memberlist.Node{Name: "C", Addr: net.ParseIP("10.0.0.3"), Port: 7946})
	a.NotifyJoin(&memberlist.Node{Name: "A", Addr: net.ParseIP("10.0.0.1"), Port: 7946})
	a.NotifyLeave(peer)

	assert.Equal(t, map[string]string{"B": "10.0.0.2:7001", "C": "10.0.0.3:7946"}, ev.joined)
	assert.Equal(t, []string{"B"}, ev.left)
}
