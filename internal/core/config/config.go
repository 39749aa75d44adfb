package config

import (
	"time"

	redisclient "github.com/vietddude/rpcmon/internal/infra/redis"
	"github.com/vietddude/rpcmon/internal/infra/rpc"
	"github.com/vietddude/rpcmon/internal/infra/storage/postgres"
	"github.com/vietddude/rpcmon/internal/monitoring/scheduler"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Probe     rpc.Config         `yaml:"probe"`
	Scheduler scheduler.Config   `yaml:"scheduler"`
	Providers []ProviderConfig   `yaml:"providers"`

	// Retention bounds how long health records are kept. 0 = forever.
	Retention time.Duration `yaml:"retention"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ProviderConfig seeds one provider into the registry at startup.
type ProviderConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}
