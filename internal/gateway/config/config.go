package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"

	grpcHandler "github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/inbound/grpc"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/client"
)

// Config holds Gateway configuration
type Config struct {
	Server ServerConfig             `json:"server" yaml:"server"`
	Cache  client.Config            `json:"cache" yaml:"cache"`
	RPC    grpcHandler.ClientConfig `json:"rpc" yaml:"rpc"`
	Logger logger.Config            `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Addr             string `json:"addr" yaml:"addr"`
	BodyLimit        int    `json:"body_limit" yaml:"body_limit"`
	RequestTimeoutMS int    `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	AccessLog        bool   `json:"access_log" yaml:"access_log"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8090",
			BodyLimit:        4 * 1024 * 1024,
			RequestTimeoutMS: 5000,
			AccessLog:        true,
		},
		Cache: client.Config{
			Seeds:             []string{"localhost:7000", "localhost:7001", "localhost:7002"},
			RefreshIntervalMS: 5000,
			Attempts:          3,
			BackoffInitialMS:  50,
			BackoffMaxMS:      1000,
		},
		RPC: grpcHandler.DefaultClientConfig(),
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
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
		configPath = filepath.Join("internal", "gateway", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		parsedCfg = cfg
	}

	if err := parsedCfg.Cache.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache client config: %w", err)
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
