// Package config holds the complete configuration for one xorbits node:
// node identity, P2P transport, Raft consensus, the graph analyzer's
// tuning knobs, the actor pool's process layout, storage, metrics, and
// logging. Adapted from internal/config/config.go, trimmed to this
// domain's sections (API/Security/Web/Sync/Replication/Distributed
// dropped — see DESIGN.md for the per-section justification).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete configuration for one xorbits node.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	P2P       P2PConfig       `yaml:"p2p"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	ActorPool ActorPoolConfig `yaml:"actor_pool"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NodeConfig holds node-specific configuration.
type NodeConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Region      string            `yaml:"region"`
	Zone        string            `yaml:"zone"`
	Environment string            `yaml:"environment"`
	Tags        map[string]string `yaml:"tags"`
}

// P2PConfig holds P2P networking configuration for the trimmed pkg/p2p
// host, used by pkg/consensus for HA main-pool leader election.
type P2PConfig struct {
	Listen       string        `yaml:"listen"`
	Bootstrap    []string      `yaml:"bootstrap"`
	PrivateKey   string        `yaml:"private_key"`
	EnableDHT    bool          `yaml:"enable_dht"`
	ConnMgrLow   int           `yaml:"conn_mgr_low"`
	ConnMgrHigh  int           `yaml:"conn_mgr_high"`
	ConnMgrGrace string        `yaml:"conn_mgr_grace"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	MaxStreams   int           `yaml:"max_streams"`
}

// ConsensusConfig holds Raft consensus engine configuration.
type ConsensusConfig struct {
	DataDir           string        `yaml:"data_dir"`
	BindAddr          string        `yaml:"bind_addr"`
	AdvertiseAddr     string        `yaml:"advertise_addr"`
	Bootstrap         bool          `yaml:"bootstrap"`
	LogLevel          string        `yaml:"log_level"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	ElectionTimeout   time.Duration `yaml:"election_timeout"`
	CommitTimeout     time.Duration `yaml:"commit_timeout"`
	MaxAppendEntries  int           `yaml:"max_append_entries"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	SnapshotThreshold uint64        `yaml:"snapshot_threshold"`
}

// AnalyzerConfig carries the analyzer settings a config file can hold, as
// strings. ValidateExtended checks them; nothing in this repository
// converts them into a pkg/analyzer.Config.
type AnalyzerConfig struct {
	FuseEnabled         bool   `yaml:"fuse_enabled"`
	ShuffleFetchType    string `yaml:"shuffle_fetch_type"` // "by_key" | "by_index"
	InitialSameColorNum int    `yaml:"initial_same_color_num"`
}

// ActorPoolConfig lays out how many subpools this node runs and how
// crashed ones are recovered, feeding pkg/actor.ActorPoolConfig /
// pkg/actor.MainPool construction.
type ActorPoolConfig struct {
	ListenAddress string   `yaml:"listen_address"`
	NumProcess    int      `yaml:"num_process"`
	Labels        []string `yaml:"labels"` // one label per subpool, main pool excluded
	AutoRecover   string   `yaml:"auto_recover"` // "none" | "process" | "actor"
}

// StorageConfig holds the goleveldb-backed persistence seam's settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// MetricsConfig holds prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig holds logrus sink configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "text"
	Output string `yaml:"output"` // "stdout" | "file"
	File   string `yaml:"file"`
}

// DefaultConfig returns a single-node default with two subpools.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Name:        "xorbits-node",
			Region:      "local",
			Zone:        "local-a",
			Environment: "development",
			Tags:        make(map[string]string),
		},
		P2P: P2PConfig{
			Listen:       "/ip4/0.0.0.0/tcp/4001",
			Bootstrap:    []string{},
			EnableDHT:    true,
			ConnMgrLow:   50,
			ConnMgrHigh:  200,
			ConnMgrGrace: "30s",
			DialTimeout:  30 * time.Second,
			MaxStreams:   1000,
		},
		Consensus: ConsensusConfig{
			DataDir:           "./data/consensus",
			BindAddr:          "0.0.0.0:7000",
			Bootstrap:         false,
			LogLevel:          "INFO",
			HeartbeatTimeout:  time.Second,
			ElectionTimeout:   time.Second,
			CommitTimeout:     50 * time.Millisecond,
			MaxAppendEntries:  64,
			SnapshotInterval:  120 * time.Second,
			SnapshotThreshold: 8192,
		},
		Analyzer: AnalyzerConfig{
			FuseEnabled:         true,
			ShuffleFetchType:    "by_key",
			InitialSameColorNum: 0,
		},
		ActorPool: ActorPoolConfig{
			ListenAddress: "127.0.0.1:10001",
			NumProcess:    2,
			Labels:        []string{"main", "numa-0"},
			AutoRecover:   "process",
		},
		Storage: StorageConfig{
			DataDir: "./data/storage",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Listen:    "0.0.0.0:9090",
			Path:      "/metrics",
			Namespace: "xorbits",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads configuration from configFile (or the standard search path
// when empty), overlays XORBITS_-prefixed environment variables, and
// validates the result.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/.xorbits")
		viper.AddConfigPath("/etc/xorbits")
	}

	viper.SetEnvPrefix("XORBITS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate ensures required directories exist (creating them if absent)
// and rejects a handful of structurally invalid settings.
func (c *Config) Validate() error {
	dirs := []string{c.Consensus.DataDir, c.Storage.DataDir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}

	if c.Logging.Output == "file" && c.Logging.File != "" {
		logDir := filepath.Dir(c.Logging.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("config: create log directory %s: %w", logDir, err)
		}
	}

	if c.ActorPool.NumProcess < 1 {
		return fmt.Errorf("config: actor_pool.num_process must be >= 1")
	}
	if len(c.ActorPool.Labels) != c.ActorPool.NumProcess {
		return fmt.Errorf("config: actor_pool.labels must have num_process (%d) entries, got %d", c.ActorPool.NumProcess, len(c.ActorPool.Labels))
	}

	return nil
}

// Save writes the configuration to filename via viper.
func (c *Config) Save(filename string) error {
	viper.Set("config", c)
	return viper.WriteConfigAs(filename)
}
