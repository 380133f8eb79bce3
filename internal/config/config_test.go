package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.Namespace != "resq" {
		t.Errorf("Namespace = %q", cfg.Namespace)
	}
	if cfg.WorkerCount != 1 || cfg.JobsPerFork != 1 || cfg.ThreadCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", cfg.WorkerCount, cfg.JobsPerFork, cfg.ThreadCount)
	}
	if cfg.Interval != 5*time.Second {
		t.Errorf("Interval = %v", cfg.Interval)
	}
	if cfg.TermTimeout != 30*time.Second {
		t.Errorf("TermTimeout = %v", cfg.TermTimeout)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Namespace != "resq" {
		t.Errorf("Namespace = %q, want defaults", cfg.Namespace)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resq.yml")
	data := "namespace: myapp\nworker_count: 3\nqueues: [critical, mail]\ninterval: 2s\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Namespace != "myapp" {
		t.Errorf("Namespace = %q, want myapp", cfg.Namespace)
	}
	if cfg.WorkerCount != 3 {
		t.Errorf("WorkerCount = %d, want 3", cfg.WorkerCount)
	}
	if len(cfg.Queues) != 2 || cfg.Queues[0] != "critical" {
		t.Errorf("Queues = %v", cfg.Queues)
	}
	if cfg.Interval != 2*time.Second {
		t.Errorf("Interval = %v, want 2s", cfg.Interval)
	}
	// Fields the file does not mention keep their defaults.
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("RedisURL = %q, want default", cfg.RedisURL)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("queues: [unclosed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() with malformed YAML should fail")
	}
}

func TestApplyEnvQueues(t *testing.T) {
	t.Setenv("QUEUES", "high, low ,,")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if len(cfg.Queues) != 2 || cfg.Queues[0] != "high" || cfg.Queues[1] != "low" {
		t.Errorf("Queues = %v, want [high low]", cfg.Queues)
	}
}

func TestApplyEnvQueueFallback(t *testing.T) {
	t.Setenv("QUEUES", "")
	t.Setenv("QUEUE", "solo")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if len(cfg.Queues) != 1 || cfg.Queues[0] != "solo" {
		t.Errorf("Queues = %v, want [solo]", cfg.Queues)
	}
}

func TestApplyEnvQueuesWinsOverQueue(t *testing.T) {
	t.Setenv("QUEUES", "a,b")
	t.Setenv("QUEUE", "c")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if len(cfg.Queues) != 2 || cfg.Queues[0] != "a" {
		t.Errorf("Queues = %v, want [a b]", cfg.Queues)
	}
}

func TestApplyEnvTermTimeoutFloatSeconds(t *testing.T) {
	t.Setenv("RESQUE_TERM_TIMEOUT", "4.5")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.TermTimeout != 4500*time.Millisecond {
		t.Errorf("TermTimeout = %v, want 4.5s", cfg.TermTimeout)
	}
}

func TestApplyEnvBadNumbers(t *testing.T) {
	for _, name := range []string{"WORKER_COUNT", "JOBS_PER_FORK", "THREAD_COUNT", "RESQUE_TERM_TIMEOUT"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "banana")
			cfg := Default()
			if err := cfg.ApplyEnv(); err == nil {
				t.Errorf("ApplyEnv() with bad %s should fail", name)
			}
		})
	}
}

func TestApplyEnvVerbosity(t *testing.T) {
	t.Setenv("VVERBOSE", "1")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if !cfg.Verbose || !cfg.VeryVerbose {
		t.Errorf("VVERBOSE should set both Verbose and VeryVerbose, got %v/%v", cfg.Verbose, cfg.VeryVerbose)
	}
}

func TestApplyEnvBackgroundAndPIDFile(t *testing.T) {
	t.Setenv("BACKGROUND", "yes")
	t.Setenv("PIDFILE", "/tmp/resq.pid")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if !cfg.Background {
		t.Error("BACKGROUND should set Background")
	}
	if cfg.PIDFile != "/tmp/resq.pid" {
		t.Errorf("PIDFile = %q", cfg.PIDFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) { c.Queues = []string{"q"} }, false},
		{"no queues", func(c *Config) {}, true},
		{"threads", func(c *Config) { c.Queues = []string{"q"}; c.ThreadCount = 2 }, true},
		{"zero workers", func(c *Config) { c.Queues = []string{"q"}; c.WorkerCount = 0 }, true},
		{"zero jobs per fork", func(c *Config) { c.Queues = []string{"q"}; c.JobsPerFork = 0 }, true},
		{"negative term timeout", func(c *Config) { c.Queues = []string{"q"}; c.TermTimeout = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
