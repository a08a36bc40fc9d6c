// Package config loads foreman's configuration from environment variables,
// with an optional YAML file providing defaults that env vars override.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in the external interfaces list.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	HTTPAddr string `yaml:"http_addr"`

	RedisAddr string `yaml:"redis_addr"`

	RaftBindAddr  string   `yaml:"raft_bind_addr"`
	RaftNodeID    string   `yaml:"raft_node_id"`
	RaftBootstrap bool     `yaml:"raft_bootstrap"`
	RaftPeers     []string `yaml:"raft_peers"`

	HeartbeatTTL time.Duration `yaml:"heartbeat_ttl"`
	// ReconcileInterval is loaded but not passed to the reconciler, which
	// always ticks at reconciler.DefaultInterval.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	WorkerID                  string `yaml:"worker_id"`
	WorkerAPIAddr             string `yaml:"worker_api_addr"`
	WorkerContainerdAddr      string `yaml:"worker_containerd_addr"`
	WorkerContainerdNamespace string `yaml:"worker_containerd_namespace"`
}

func defaults() Config {
	return Config{
		DataDir:           "./data",
		HTTPAddr:          ":8080",
		RedisAddr:         "127.0.0.1:6379",
		RaftBindAddr:      "127.0.0.1:7000",
		RaftNodeID:        "node-1",
		HeartbeatTTL:      10 * time.Second,
		ReconcileInterval: 10 * time.Second,
		LogLevel:          "info",
		LogJSON:           true,
		WorkerAPIAddr:     "http://127.0.0.1:8080",
	}
}

// Load reads configFile (if non-empty) as a YAML base, then applies
// FOREMAN_* environment variables on top.
func Load(configFile string) (*Config, error) {
	cfg := defaults()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	str(&cfg.DataDir, "FOREMAN_DATA_DIR")
	str(&cfg.HTTPAddr, "FOREMAN_HTTP_ADDR")
	str(&cfg.RedisAddr, "FOREMAN_REDIS_ADDR")
	str(&cfg.RaftBindAddr, "FOREMAN_RAFT_BIND_ADDR")
	str(&cfg.RaftNodeID, "FOREMAN_RAFT_NODE_ID")
	boolean(&cfg.RaftBootstrap, "FOREMAN_RAFT_BOOTSTRAP")
	csv(&cfg.RaftPeers, "FOREMAN_RAFT_PEERS")
	duration(&cfg.HeartbeatTTL, "FOREMAN_HEARTBEAT_TTL")
	duration(&cfg.ReconcileInterval, "FOREMAN_RECONCILE_INTERVAL")
	str(&cfg.LogLevel, "FOREMAN_LOG_LEVEL")
	boolean(&cfg.LogJSON, "FOREMAN_LOG_JSON")
	str(&cfg.WorkerID, "FOREMAN_WORKER_ID")
	str(&cfg.WorkerAPIAddr, "FOREMAN_WORKER_API_ADDR")
	str(&cfg.WorkerContainerdAddr, "FOREMAN_WORKER_CONTAINERD_ADDR")
	str(&cfg.WorkerContainerdNamespace, "FOREMAN_WORKER_CONTAINERD_NAMESPACE")
}

func (c *Config) validate() error {
	if c.RaftNodeID == "" {
		return fmt.Errorf("raft node id is required")
	}
	if c.HeartbeatTTL <= 0 {
		return fmt.Errorf("heartbeat ttl must be positive")
	}
	return nil
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func boolean(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func duration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func csv(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	*dst = out
}
