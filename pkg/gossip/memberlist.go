package gossip

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/hashicorp/memberlist"
)

// Events receives membership evidence from the gossip layer. Gossip never
// changes cluster membership by itself; it only reports what it sees.
type Events interface {
	PeerJoined(nodeID, address string)
	PeerLeft(nodeID string)
}

// Config configures the gossip listener.
type Config struct {
	NodeID   string
	BindAddr string
	BindPort int
	// RPCPort is advertised to peers so they can map a gossip member to its
	// cache RPC address.
	RPCPort int
}

// Adapter runs a memberlist instance and forwards join and leave
// notifications to Events.
type Adapter struct {
	list   *memberlist.Memberlist
	conf   *memberlist.Config
	events Events

	nodeID  string
	addr    string
	rpcPort int
}

// Ensure Adapter implements the memberlist callbacks.
var (
	_ memberlist.Delegate      = (*Adapter)(nil)
	_ memberlist.EventDelegate = (*Adapter)(nil)
)

// New creates and starts the gossip listener.
func New(cfg Config, events Events) (*Adapter, error) {
	conf := memberlist.DefaultLANConfig()
	conf.Name = cfg.NodeID
	conf.BindAddr = cfg.BindAddr
	conf.BindPort = cfg.BindPort
	conf.AdvertisePort = cfg.BindPort
	conf.LogOutput = io.Discard

	a := &Adapter{
		conf:    conf,
		events:  events,
		nodeID:  cfg.NodeID,
		addr:    cfg.BindAddr,
		rpcPort: cfg.RPCPort,
	}
	conf.Events = a
	conf.Delegate = a

	list, err := memberlist.Create(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	a.list = list
	return a, nil
}

// Join contacts the gossip seeds. No seeds is not an error.
func (a *Adapter) Join(seeds []string) error {
	if len(seeds) == 0 {
		return nil
	}
	if _, err := a.list.Join(seeds); err != nil {
		return fmt.Errorf("failed to join gossip: %w", err)
	}
	return nil
}

// Leave broadcasts our departure and stops the listener.
func (a *Adapter) Leave(timeout time.Duration) error {
	if err := a.list.Leave(timeout); err != nil {
		return err
	}
	return a.list.Shutdown()
}

// NumMembers returns how many live members gossip currently sees.
func (a *Adapter) NumMembers() int {
	return a.list.NumMembers()
}

// NodeMeta returns the local node metadata.
func (a *Adapter) NodeMeta(limit int) []byte {
	data, err := encodeMeta(a.rpcPort)
	if err != nil {
		logger.Warnw("failed to marshal gossip node meta", "error", err.Error())
		return nil
	}
	if len(data) > limit {
		return nil
	}
	return data
}

// NotifyMsg, GetBroadcasts, LocalState, MergeRemoteState are not used but
// required by Delegate.
func (a *Adapter) NotifyMsg([]byte)                           {}
func (a *Adapter) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (a *Adapter) LocalState(join bool) []byte                { return nil }
func (a *Adapter) MergeRemoteState(buf []byte, join bool)     {}

// NotifyJoin is invoked when a node joins.
func (a *Adapter) NotifyJoin(node *memberlist.Node) {
	if node.Name == a.nodeID {
		return
	}
	addr := rpcAddress(node)
	logger.Infow("Gossip: node alive", "id", node.Name, "addr", addr)
	a.events.PeerJoined(node.Name, addr)
}

// NotifyLeave is invoked when a node leaves or is declared dead by gossip.
func (a *Adapter) NotifyLeave(node *memberlist.Node) {
	if node.Name == a.nodeID {
		return
	}
	logger.Infow("Gossip: node gone", "id", node.Name)
	a.events.PeerLeft(node.Name)
}

// NotifyUpdate is invoked when a node's metadata changes.
func (a *Adapter) NotifyUpdate(node *memberlist.Node) {
	a.NotifyJoin(node)
}

type nodeMeta struct {
	RPCPort int `json:"rpc_port"`
}

func encodeMeta(rpcPort int) ([]byte, error) {
	return json.Marshal(nodeMeta{RPCPort: rpcPort})
}

func decodeMeta(meta []byte) int {
	if len(meta) == 0 {
		return 0
	}
	var m nodeMeta
	if err := json.Unmarshal(meta, &m); err != nil {
		logger.Warnw("failed to decode node metadata", "error", err.Error())
		return 0
	}
	return m.RPCPort
}

// rpcAddress maps a gossip member to its cache RPC address, falling back
// to the gossip port when the member did not advertise one.
func rpcAddress(node *memberlist.Node) string {
	port := decodeMeta(node.Meta)
	if port <= 0 {
		port = int(node.Port)
	}
	return net.JoinHostPort(node.Addr.String(), strconv.Itoa(port))
}
