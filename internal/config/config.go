// Package config assembles worker configuration from defaults, an optional
// YAML file, and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration of a worker process.
type Config struct {
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	Namespace     string `yaml:"namespace"`

	Queues      []string `yaml:"queues"`
	WorkerCount int      `yaml:"worker_count"`
	JobsPerFork int      `yaml:"jobs_per_fork"`
	ThreadCount int      `yaml:"thread_count"`

	Interval          time.Duration `yaml:"interval"`
	TermTimeout       time.Duration `yaml:"term_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	ProclinePrefix string `yaml:"procline_prefix"`
	Background     bool   `yaml:"background"`
	PIDFile        string `yaml:"pidfile"`

	Verbose     bool `yaml:"verbose"`
	VeryVerbose bool `yaml:"vverbose"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		RedisURL:    "redis://localhost:6379",
		Namespace:   "resq",
		WorkerCount: 1,
		JobsPerFork: 1,
		ThreadCount: 1,
		Interval:    5 * time.Second,
		TermTimeout: 30 * time.Second,
	}
}

// Load reads a YAML config file over the defaults. A missing path is not an
// error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides the config from the environment. QUEUE is a fallback
// for QUEUES; RESQUE_TERM_TIMEOUT is float seconds.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("REDIS_NAMESPACE"); v != "" {
		c.Namespace = v
	}

	if v := os.Getenv("QUEUES"); v != "" {
		c.Queues = splitQueues(v)
	} else if v := os.Getenv("QUEUE"); v != "" {
		c.Queues = splitQueues(v)
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("bad WORKER_COUNT %q: %w", v, err)
		}
		c.WorkerCount = n
	}
	if v := os.Getenv("JOBS_PER_FORK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("bad JOBS_PER_FORK %q: %w", v, err)
		}
		c.JobsPerFork = n
	}
	if v := os.Getenv("THREAD_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("bad THREAD_COUNT %q: %w", v, err)
		}
		c.ThreadCount = n
	}

	if v := os.Getenv("RESQUE_TERM_TIMEOUT"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad RESQUE_TERM_TIMEOUT %q: %w", v, err)
		}
		c.TermTimeout = time.Duration(secs * float64(time.Second))
	}

	if v := os.Getenv("RESQUE_PROCLINE_PREFIX"); v != "" {
		c.ProclinePrefix = v
	}
	if os.Getenv("BACKGROUND") != "" {
		c.Background = true
	}
	if v := os.Getenv("PIDFILE"); v != "" {
		c.PIDFile = v
	}
	if os.Getenv("LOGGING") != "" || os.Getenv("VERBOSE") != "" {
		c.Verbose = true
	}
	if os.Getenv("VVERBOSE") != "" {
		c.Verbose = true
		c.VeryVerbose = true
	}
	return nil
}

// Validate rejects configurations the runtime refuses to start with.
func (c *Config) Validate() error {
	if len(c.Queues) == 0 {
		return fmt.Errorf("no queue configured: set QUEUES or QUEUE")
	}
	if c.ThreadCount > 1 {
		return fmt.Errorf("thread_count %d is not supported: must be 1", c.ThreadCount)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker_count must be at least 1, got %d", c.WorkerCount)
	}
	if c.JobsPerFork < 1 {
		return fmt.Errorf("jobs_per_fork must be at least 1, got %d", c.JobsPerFork)
	}
	if c.TermTimeout < 0 {
		return fmt.Errorf("term_timeout cannot be negative")
	}
	return nil
}

func splitQueues(s string) []string {
	var out []string
	for _, q := range strings.Split(s, ",") {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}
