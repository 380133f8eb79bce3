// cmd/helpers.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/resqd/resq/internal/config"
	"github.com/resqd/resq/internal/store"
)

// loadConfig assembles the effective configuration: defaults, then the YAML
// file, then the environment, then any root flags the user set.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if rootRedisURL != "" {
		cfg.RedisURL = rootRedisURL
	}
	if rootNamespace != "" {
		cfg.Namespace = rootNamespace
	}
	if verboseMode {
		cfg.Verbose = true
	}
	if debugMode {
		cfg.Verbose = true
		cfg.VeryVerbose = true
	}
	return cfg, nil
}

// connectStore opens a store client from the config and pings it.
func connectStore(ctx context.Context, cfg config.Config) (*store.Client, error) {
	s := store.NewClient(store.Config{
		URL:       cfg.RedisURL,
		Password:  cfg.RedisPassword,
		Namespace: cfg.Namespace,
		LogFn:     logLine,
	})
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisURL, err)
	}
	return s, nil
}
