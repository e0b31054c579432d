package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"

	grpcHandler "github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/inbound/grpc"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/membership"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/memstore"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/redisloader"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/service"
	"github.com/anthanhphan/go-distributed-cache/pkg/eviction"
	"github.com/anthanhphan/go-distributed-cache/pkg/merkle"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
)

// Config holds Cache Node configuration
type Config struct {
	Server      ServerConfig             `json:"server" yaml:"server"`
	Gossip      GossipConfig             `json:"gossip" yaml:"gossip"`
	Cluster     ClusterConfig            `json:"cluster" yaml:"cluster"`
	Replication ReplicationConfig        `json:"replication" yaml:"replication"`
	Failure     FailureConfig            `json:"failure" yaml:"failure"`
	AntiEntropy AntiEntropyConfig        `json:"anti_entropy" yaml:"anti_entropy"`
	Rebalance   RebalanceConfig          `json:"rebalance" yaml:"rebalance"`
	Janitor     JanitorConfig            `json:"janitor" yaml:"janitor"`
	Store       memstore.Config          `json:"store" yaml:"store"`
	Membership  MembershipConfig         `json:"membership" yaml:"membership"`
	Loader      LoaderConfig             `json:"loader" yaml:"loader"`
	IDClock     IDClockConfig            `json:"id_clock" yaml:"id_clock"`
	RPC         grpcHandler.ClientConfig `json:"rpc" yaml:"rpc"`
	Metrics     metrics.Config           `json:"metrics" yaml:"metrics"`
	Logger      logger.Config            `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	NodeID   string `json:"node_id" yaml:"node_id"`
	Hostname string `json:"hostname" yaml:"hostname"`
	Port     int    `json:"port" yaml:"port"`
}

type GossipConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Port    int      `json:"port" yaml:"port"`
	Seeds   []string `json:"seeds" yaml:"seeds"`
}

type ClusterConfig struct {
	// Seeds are RPC addresses of existing members. Empty bootstraps a new cluster.
	Seeds             []string `json:"seeds" yaml:"seeds"`
	ReplicationFactor int      `json:"replication_factor" yaml:"replication_factor"`
	WriteQuorum       int      `json:"write_quorum" yaml:"write_quorum"`
	VirtualNodes      int      `json:"virtual_nodes" yaml:"virtual_nodes"`
	LeaveOnShutdown   bool     `json:"leave_on_shutdown" yaml:"leave_on_shutdown"`
}

type ReplicationConfig struct {
	Mode             service.ReplicationMode `json:"mode" yaml:"mode"`
	TimeoutMS        int                     `json:"timeout_ms" yaml:"timeout_ms"`
	Retries          int                     `json:"retries" yaml:"retries"`
	BackoffInitialMS int                     `json:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffMaxMS     int                     `json:"backoff_max_ms" yaml:"backoff_max_ms"`
	Workers          int                     `json:"workers" yaml:"workers"`
	QueueSize        int                     `json:"queue_size" yaml:"queue_size"`
}

type FailureConfig struct {
	HeartbeatIntervalMS  int `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`
	SuspectAfterMS       int `json:"suspect_after_ms" yaml:"suspect_after_ms"`
	DeadAfterMS          int `json:"dead_after_ms" yaml:"dead_after_ms"`
	SuspectConfirmations int `json:"suspect_confirmations" yaml:"suspect_confirmations"`
}

type AntiEntropyConfig struct {
	IntervalMS    int `json:"interval_ms" yaml:"interval_ms"`
	MerkleBuckets int `json:"merkle_buckets" yaml:"merkle_buckets"`
}

type RebalanceConfig struct {
	KeysPerSecond     float64 `json:"keys_per_second" yaml:"keys_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
	MigrationWindowMS int     `json:"migration_window_ms" yaml:"migration_window_ms"`
}

type JanitorConfig struct {
	IntervalMS       int `json:"interval_ms" yaml:"interval_ms"`
	TombstoneGraceMS int `json:"tombstone_grace_ms" yaml:"tombstone_grace_ms"`
}

// MembershipBackend selects the coordination service behind the membership gate.
type MembershipBackend string

const (
	MembershipLocal MembershipBackend = "local"
	MembershipRedis MembershipBackend = "redis"
	MembershipEtcd  MembershipBackend = "etcd"
)

type MembershipConfig struct {
	Backend MembershipBackend      `json:"backend" yaml:"backend"`
	Redis   membership.RedisConfig `json:"redis" yaml:"redis"`
	Etcd    membership.EtcdConfig  `json:"etcd" yaml:"etcd"`
}

type LoaderConfig struct {
	Enabled bool               `json:"enabled" yaml:"enabled"`
	Redis   redisloader.Config `json:"redis" yaml:"redis"`
}

// IDClockConfig selects the time source of write IDs. With Redis set the
// cluster shares one clock; otherwise each node uses its own.
type IDClockConfig struct {
	Redis     bool   `json:"redis" yaml:"redis"`
	Addr      string `json:"addr" yaml:"addr"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	svc := service.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Hostname: "127.0.0.1",
			Port:     7000,
		},
		Gossip: GossipConfig{
			Port: 7946,
		},
		Cluster: ClusterConfig{
			VirtualNodes: svc.VirtualNodes,
		},
		Replication: ReplicationConfig{
			Mode:             svc.Mode,
			TimeoutMS:        ms(svc.ReplicationTimeout),
			Retries:          svc.ReplicationRetries,
			BackoffInitialMS: ms(svc.RetryBackoff.Initial),
			BackoffMaxMS:     ms(svc.RetryBackoff.Max),
			Workers:          svc.ReplicationWorkers,
			QueueSize:        svc.ReplicationQueue,
		},
		Failure: FailureConfig{
			HeartbeatIntervalMS:  ms(svc.HeartbeatInterval),
			SuspectAfterMS:       ms(svc.SuspectAfter),
			DeadAfterMS:          ms(svc.DeadAfter),
			SuspectConfirmations: svc.SuspectConfirmations,
		},
		AntiEntropy: AntiEntropyConfig{
			IntervalMS:    ms(svc.AntiEntropyInterval),
			MerkleBuckets: svc.MerkleBuckets,
		},
		Rebalance: RebalanceConfig{
			KeysPerSecond:     svc.RebalanceRate,
			Burst:             svc.RebalanceBurst,
			MigrationWindowMS: ms(svc.MigrationWindow),
		},
		Janitor: JanitorConfig{
			IntervalMS:       ms(svc.JanitorInterval),
			TombstoneGraceMS: ms(svc.TombstoneGrace),
		},
		Store: memstore.Config{
			Capacity:  256 << 20,
			HighWater: memstore.DefaultHighWater,
			LowWater:  memstore.DefaultLowWater,
			Policy:    eviction.LRU,
		},
		Membership: MembershipConfig{
			Backend: MembershipLocal,
		},
		IDClock: IDClockConfig{
			TimeoutMS: 50,
		},
		RPC:     grpcHandler.DefaultClientConfig(),
		Metrics: metrics.DefaultConfig(),
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

func ms(d time.Duration) int {
	return int(d / time.Millisecond)
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive, got %d", c.Server.Port)
	}
	if c.Cluster.ReplicationFactor <= 0 {
		return errors.New("cluster.replication_factor is required")
	}
	if c.Cluster.WriteQuorum > c.Cluster.ReplicationFactor {
		return fmt.Errorf("cluster.write_quorum %d exceeds replication_factor %d", c.Cluster.WriteQuorum, c.Cluster.ReplicationFactor)
	}
	if _, err := eviction.ParsePolicyType(string(c.Store.Policy)); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := merkle.ValidateLeafCount(c.AntiEntropy.MerkleBuckets); err != nil {
		return fmt.Errorf("anti_entropy.merkle_buckets: %w", err)
	}
	switch c.Membership.Backend {
	case MembershipLocal:
	case MembershipRedis:
		if c.Membership.Redis.Addr == "" {
			return errors.New("membership.redis.addr is required")
		}
	case MembershipEtcd:
		if len(c.Membership.Etcd.Endpoints) == 0 {
			return errors.New("membership.etcd.endpoints is required")
		}
	default:
		return fmt.Errorf("unknown membership backend %q", c.Membership.Backend)
	}
	if c.Loader.Enabled && c.Loader.Redis.Addr == "" {
		return errors.New("loader.redis.addr is required when the loader is enabled")
	}
	if c.IDClock.Redis && c.IDClock.Addr == "" {
		return errors.New("id_clock.addr is required when the redis clock is enabled")
	}
	return nil
}

// Address is the RPC address peers use to reach this node.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Hostname, c.Server.Port)
}

// NodeID returns the configured ID or one derived from hostname and port.
func (c *Config) NodeID() string {
	if c.Server.NodeID != "" {
		return c.Server.NodeID
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", host, c.Server.Port)
}

// ServiceConfig converts the file layout into the service's runtime config.
func (c *Config) ServiceConfig() service.Config {
	return service.Config{
		NodeID:            c.NodeID(),
		Address:           c.Address(),
		ReplicationFactor: c.Cluster.ReplicationFactor,
		WriteQuorum:       c.Cluster.WriteQuorum,
		VirtualNodes:      c.Cluster.VirtualNodes,

		Mode:               c.Replication.Mode,
		ReplicationTimeout: millis(c.Replication.TimeoutMS),
		ReplicationRetries: c.Replication.Retries,
		RetryBackoff: resilience.Backoff{
			Initial:    millis(c.Replication.BackoffInitialMS),
			Max:        millis(c.Replication.BackoffMaxMS),
			Multiplier: resilience.DefaultBackoff.Multiplier,
		},
		ReplicationWorkers: c.Replication.Workers,
		ReplicationQueue:   c.Replication.QueueSize,

		HeartbeatInterval:    millis(c.Failure.HeartbeatIntervalMS),
		SuspectAfter:         millis(c.Failure.SuspectAfterMS),
		DeadAfter:            millis(c.Failure.DeadAfterMS),
		SuspectConfirmations: c.Failure.SuspectConfirmations,

		AntiEntropyInterval: millis(c.AntiEntropy.IntervalMS),
		MerkleBuckets:       c.AntiEntropy.MerkleBuckets,

		RebalanceRate:   c.Rebalance.KeysPerSecond,
		RebalanceBurst:  c.Rebalance.Burst,
		MigrationWindow: millis(c.Rebalance.MigrationWindowMS),

		JanitorInterval: millis(c.Janitor.IntervalMS),
		TombstoneGrace:  millis(c.Janitor.TombstoneGraceMS),
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "cache", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, cfg.Validate()
	}

	if err := parsedCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
