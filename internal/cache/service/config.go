package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/anthanhphan/go-distributed-cache/pkg/merkle"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
)

// ReplicationMode selects whether writes wait for the write quorum.
type ReplicationMode string

const (
	ReplicationSync  ReplicationMode = "sync"
	ReplicationAsync ReplicationMode = "async"
)

// Config is the runtime configuration of one cache node.
type Config struct {
	NodeID  string
	Address string

	// ReplicationFactor is R, the number of owners per key. It has no
	// default and must be set.
	ReplicationFactor int
	// WriteQuorum is W, the acknowledgements a sync write waits for,
	// counting the primary. Zero means R/2+1.
	WriteQuorum  int
	VirtualNodes int

	Mode               ReplicationMode
	ReplicationTimeout time.Duration
	ReplicationRetries int
	RetryBackoff       resilience.Backoff
	ReplicationWorkers int
	ReplicationQueue   int

	HeartbeatInterval    time.Duration
	SuspectAfter         time.Duration
	DeadAfter            time.Duration
	SuspectConfirmations int

	AntiEntropyInterval time.Duration
	MerkleBuckets       int

	// RebalanceRate limits re-replication and handoff pushes, in keys per second.
	RebalanceRate  float64
	RebalanceBurst int

	MigrationWindow time.Duration
	JanitorInterval time.Duration
	TombstoneGrace  time.Duration
}

// DefaultConfig returns the defaults for everything except identity and R.
func DefaultConfig() Config {
	return Config{
		VirtualNodes:         128,
		Mode:                 ReplicationSync,
		ReplicationTimeout:   500 * time.Millisecond,
		ReplicationRetries:   3,
		RetryBackoff:         resilience.DefaultBackoff,
		ReplicationWorkers:   8,
		ReplicationQueue:     1024,
		HeartbeatInterval:    time.Second,
		SuspectAfter:         3 * time.Second,
		DeadAfter:            10 * time.Second,
		SuspectConfirmations: 2,
		AntiEntropyInterval:  time.Minute,
		MerkleBuckets:        1024,
		RebalanceRate:        500,
		RebalanceBurst:       50,
		MigrationWindow:      30 * time.Second,
		JanitorInterval:      10 * time.Second,
		TombstoneGrace:       10 * time.Minute,
	}
}

// Quorum returns the effective W.
func (c Config) Quorum() int {
	if c.WriteQuorum > 0 {
		return c.WriteQuorum
	}
	return c.ReplicationFactor/2 + 1
}

func (c Config) Validate() error {
	if c.NodeID == "" {
		return errors.New("node id is required")
	}
	if c.ReplicationFactor <= 0 {
		return errors.New("replication factor is required")
	}
	if c.WriteQuorum < 0 || c.WriteQuorum > c.ReplicationFactor {
		return fmt.Errorf("write quorum %d must be between 1 and replication factor %d", c.WriteQuorum, c.ReplicationFactor)
	}
	if c.Mode != ReplicationSync && c.Mode != ReplicationAsync {
		return fmt.Errorf("unknown replication mode %q", c.Mode)
	}
	if c.SuspectAfter <= 0 || c.DeadAfter < c.SuspectAfter {
		return fmt.Errorf("dead_after (%s) must not be shorter than suspect_after (%s)", c.DeadAfter, c.SuspectAfter)
	}
	if err := merkle.ValidateLeafCount(c.MerkleBuckets); err != nil {
		return fmt.Errorf("merkle buckets: %w", err)
	}
	return nil
}
