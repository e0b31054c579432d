package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcHandler "github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/inbound/grpc"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/client"
	httpHandler "github.com/anthanhphan/go-distributed-cache/internal/gateway/adapter/inbound/http"
	"github.com/anthanhphan/go-distributed-cache/internal/gateway/config"
	"github.com/anthanhphan/gosdk/logger"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg         *config.Config
	server      *httpHandler.Server
	cacheClient *client.CacheClient
	nodes       *grpcHandler.ClientAdapter
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Cache Client
	// The gateway is not a ring member. It polls node seeds for topology.
	nodes := grpcHandler.NewClientAdapter(cfg.RPC)
	cacheClient, err := client.New(cfg.Cache, nodes)
	if err != nil {
		_ = nodes.Close()
		return nil, err
	}

	// 4. HTTP Server
	httpServer := httpHandler.NewServer(cfg, cacheClient)

	return &App{
		cfg:         cfg,
		server:      httpServer,
		cacheClient: cacheClient,
		nodes:       nodes,
	}, nil
}

func (a *App) Run() error {
	// Start Cache Client; an unreachable cluster is retried by the refresh loop.
	if err := a.cacheClient.Start(context.Background()); err != nil {
		logger.Warnw("Initial topology refresh failed", "seeds", a.cfg.Cache.Seeds, "error", err.Error())
	}

	// Start HTTP
	logger.Infow("Cache gateway starting", "addr", a.cfg.Server.Addr)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("Gateway server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Stop(ctx); err != nil {
		logger.Errorw("Gateway shutdown error", "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}
	a.cacheClient.Close()
	if err := a.nodes.Close(); err != nil {
		logger.Warnw("Node client close failed", "error", err.Error())
	}

	return runErr
}
