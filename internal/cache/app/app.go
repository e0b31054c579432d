package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	grpcHandler "github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/inbound/grpc"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/membership"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/memstore"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/redisloader"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/config"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/service"
	"github.com/anthanhphan/go-distributed-cache/pkg/gossip"
	"github.com/anthanhphan/go-distributed-cache/pkg/idgen"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/gosdk/logger"
)

const (
	joinAttempts    = 5
	joinRetryDelay  = 2 * time.Second
	shutdownTimeout = 30 * time.Second
)

type App struct {
	cfg         *config.Config
	server      *grpc.Server
	gossip      *gossip.Adapter
	client      *grpcHandler.ClientAdapter
	service     *service.CacheServiceImpl
	closers     []func() error
	stopMetrics func()
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	a := &App{cfg: cfg}
	svcCfg := cfg.ServiceConfig()

	// 3. Metrics
	sink, stopMetrics, err := metrics.Setup("cachenode", cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	a.stopMetrics = stopMetrics

	// 4. Shard Store
	store, err := memstore.New(cfg.Store, memstore.WithMetrics(sink))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	// 5. Membership gate
	gate, err := a.newGate(svcCfg.NodeID)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to init membership gate: %w", err)
	}

	opts := []service.Option{service.WithMetrics(sink)}

	// 6. Optional origin loader and shared ID clock
	if cfg.Loader.Enabled {
		rdb := a.redisClient(cfg.Loader.Redis.Addr, cfg.Loader.Redis.Password, cfg.Loader.Redis.DB)
		opts = append(opts, service.WithLoader(redisloader.New(rdb, cfg.Loader.Redis)))
	}
	if cfg.IDClock.Redis {
		rdb := a.redisClient(cfg.IDClock.Addr, "", 0)
		opts = append(opts, service.WithIDClock(idgen.NewRedisClock(rdb, time.Duration(cfg.IDClock.TimeoutMS)*time.Millisecond, sink)))
	}

	// 7. Peer client
	a.client = grpcHandler.NewClientAdapter(cfg.RPC)

	svc, err := service.NewCacheService(svcCfg, store, a.client, gate, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.service = svc

	// 8. gRPC Server
	a.server = grpc.NewServer()
	grpcHandler.NewServer(svc).Register(a.server)

	// 9. Gossip
	if cfg.Gossip.Enabled {
		g, err := gossip.New(gossip.Config{
			NodeID:   svcCfg.NodeID,
			BindAddr: cfg.Server.Hostname,
			BindPort: cfg.Gossip.Port,
			RPCPort:  cfg.Server.Port,
		}, svc)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init gossip: %w", err)
		}
		a.gossip = g
	}

	return a, nil
}

func (a *App) newGate(nodeID string) (port.MembershipGate, error) {
	m := a.cfg.Membership
	switch m.Backend {
	case config.MembershipRedis:
		rdb := a.redisClient(m.Redis.Addr, m.Redis.Password, m.Redis.DB)
		return membership.NewRedisGate(rdb, nodeID, m.Redis), nil
	case config.MembershipEtcd:
		cli, err := membership.NewEtcdClient(m.Etcd)
		if err != nil {
			return nil, err
		}
		gate := membership.NewEtcdGate(cli, m.Etcd)
		a.closers = append(a.closers, cli.Close, gate.Close)
		return gate, nil
	default:
		return membership.NewLocalGate(), nil
	}
}

func (a *App) redisClient(addr, password string, db int) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	a.closers = append(a.closers, rdb.Close)
	return rdb
}

func (a *App) Run() error {
	// Start gRPC first so peers can reach us while we join.
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.cfg.Server.Port, err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Serve(listener); err != nil {
			serverErrCh <- err
		}
	}()

	if a.gossip != nil {
		a.joinGossip()
	}

	if err := a.bootstrap(); err != nil {
		a.server.Stop()
		a.close()
		return err
	}
	a.service.Start()

	logger.Infow("Cache node started",
		"id", a.cfg.NodeID(),
		"address", a.cfg.Address(),
		"gossip", a.cfg.Gossip.Port,
		"replication_factor", a.cfg.Cluster.ReplicationFactor,
		"membership", string(a.cfg.Membership.Backend))

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		errMsg := err.Error()
		if !strings.Contains(errMsg, "use of closed network connection") && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = fmt.Errorf("gRPC server failed: %w", err)
			logger.Errorw("Cache gRPC server exited unexpectedly", "error", errMsg)
		}
	}

	a.shutdown()
	return runErr
}

func (a *App) joinGossip() {
	seeds := make([]string, 0, len(a.cfg.Gossip.Seeds))
	selfSeed := fmt.Sprintf("%s:%d", a.cfg.Server.Hostname, a.cfg.Gossip.Port)
	for _, seed := range a.cfg.Gossip.Seeds {
		if seed == "" || seed == selfSeed {
			continue
		}
		seeds = append(seeds, seed)
	}
	if len(seeds) == 0 {
		return
	}

	var joinErr error
	for i := 0; i < joinAttempts; i++ {
		joinErr = a.gossip.Join(seeds)
		if joinErr == nil {
			return
		}
		logger.Warnw("Failed to join gossip, retrying...", "attempt", i+1, "error", joinErr.Error())
		time.Sleep(joinRetryDelay)
	}
	logger.Errorw("Failed to join gossip after retries", "error", joinErr.Error())
}

func (a *App) bootstrap() error {
	seeds := make([]string, 0, len(a.cfg.Cluster.Seeds))
	for _, seed := range a.cfg.Cluster.Seeds {
		if seed != "" && seed != a.cfg.Address() {
			seeds = append(seeds, seed)
		}
	}

	var err error
	for i := 0; i < joinAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = a.service.Bootstrap(ctx, seeds)
		cancel()
		if err == nil {
			return nil
		}
		logger.Warnw("Failed to enter cluster, retrying...", "attempt", i+1, "seeds", seeds, "error", err.Error())
		time.Sleep(joinRetryDelay)
	}
	return fmt.Errorf("failed to enter cluster: %w", err)
}

func (a *App) shutdown() {
	logger.Info("Shutting down cache node")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.cfg.Cluster.LeaveOnShutdown {
		if err := a.service.LeaveCluster(ctx); err != nil {
			logger.Warnw("Graceful leave failed", "error", err.Error())
		}
	}
	if a.gossip != nil {
		if err := a.gossip.Leave(time.Second); err != nil {
			logger.Warnw("Gossip leave failed", "error", err.Error())
		}
	}
	a.server.GracefulStop()
	if err := a.service.Close(ctx); err != nil {
		logger.Warnw("Replication queue did not drain", "error", err.Error())
	}
	a.close()
}

func (a *App) close() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			logger.Warnw("Peer client close failed", "error", err.Error())
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnw("Close failed", "error", err.Error())
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
}
