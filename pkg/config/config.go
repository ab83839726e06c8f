// Package config loads the token registry's process configuration: a
// YAML file on disk, overridable by the command-line flags the cmd
// package binds onto it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs the registry process needs at boot.
// Zero values are filled in by Default before a YAML file is applied,
// so a partial file only overrides what it mentions.
type Config struct {
	// DataDir holds the bbolt database file.
	DataDir string `yaml:"data-dir"`
	// ListenAddr is the HTTP bind address for the token API.
	ListenAddr string `yaml:"listen-addr"`
	// LogLevel and LogJSON mirror pkg/log's Config.
	LogLevel string `yaml:"log-level"`
	LogJSON  bool   `yaml:"log-json"`
	// HistoryLimit bounds the previous chain length (H here).
	HistoryLimit int `yaml:"history-limit"`
	// DefaultQuota bounds live tokens per owner; 0 means unlimited.
	DefaultQuota int `yaml:"default-quota"`
	// CacheCapacity bounds the KV read-through cache's resident set.
	CacheCapacity int `yaml:"cache-capacity"`
	// ClusterMapFile points at the clustercalc.StaticCalculator YAML.
	ClusterMapFile string `yaml:"cluster-map-file"`
	// Admins lists administrator identities for the default RoleGate.
	Admins []string `yaml:"admins"`
	// ReservedNames blocks token names that collide with routing
	// internals (e.g. the host-resolver's own control names).
	ReservedNames []string `yaml:"reserved-names"`
	// Peers lists sibling replica base URLs for peer-refresh broadcast.
	Peers []string `yaml:"peers"`
	// PeerTimeoutSeconds bounds how long a single peer broadcast waits.
	PeerTimeoutSeconds int `yaml:"peer-timeout-seconds"`
}

// Default returns the configuration a fresh single-node deployment
// would run with, before any file or flag override is applied.
func Default() Config {
	return Config{
		DataDir:            "./data",
		ListenAddr:         ":8080",
		LogLevel:           "info",
		LogJSON:            false,
		HistoryLimit:       5,
		DefaultQuota:       0,
		CacheCapacity:      4096,
		ClusterMapFile:     "",
		PeerTimeoutSeconds: 5,
	}
}

// Load reads path as YAML over the defaults. A missing file is not an
// error: Load returns Default() unchanged, matching a zero-config
// first run.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
