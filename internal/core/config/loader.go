package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/rpcmon/internal/infra/rpc"
	"github.com/vietddude/rpcmon/internal/infra/storage/postgres"
	"github.com/vietddude/rpcmon/internal/monitoring/scheduler"
	"github.com/vietddude/rpcmon/internal/monitoring/sweeper"
)

// IntervalEnv overrides scheduler.interval, in minutes.
const IntervalEnv = "HEALTH_CHECK_INTERVAL_MINUTES"

// DefaultProviders are monitored when the configuration lists none.
var DefaultProviders = []ProviderConfig{
	{
		ID:          "primordial-node",
		Name:        "Primordial Node",
		URL:         "https://node.primordial.bdagscan.com",
		Description: "BlockDAG Primordial network node",
	},
	{
		ID:          "awakening-relay",
		Name:        "Awakening Relay",
		URL:         "https://relay.awakening.bdagscan.com",
		Description: "BlockDAG Awakening network relay",
	},
}

// Load reads configuration from a YAML file. An empty path yields the defaults.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv(IntervalEnv); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be a positive integer", IntervalEnv, v)
		}
		cfg.Scheduler.Interval = time.Duration(minutes) * time.Minute
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Probe.Timeout <= 0 {
		cfg.Probe.Timeout = rpc.DefaultTimeout
	}
	if len(cfg.Probe.Methods) == 0 {
		cfg.Probe.Methods = append([]string(nil), rpc.DefaultMethods...)
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = scheduler.DefaultInterval
	}
	if cfg.Scheduler.Concurrency <= 0 {
		cfg.Scheduler.Concurrency = sweeper.DefaultConcurrency
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = append([]ProviderConfig(nil), DefaultProviders...)
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "", postgres.DriverPQ, postgres.DriverPGX:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: must be postgres or pgx", c.Database.Driver))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: must be text or json", c.Logging.Format))
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: id is required", i))
		}
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: url is required", i))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}

	return errors.Join(errs...)
}
