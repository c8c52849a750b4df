// Package config loads and hot-reloads the runtime's configuration: one
// struct per concern, YAML on disk, environment-variable overlay for
// secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config aggregates all per-concern sub-configs.
type Config struct {
	MCP       MCPConfig       `yaml:"mcp"`
	Session   SessionConfig   `yaml:"session"`
	Memory    MemoryConfig    `yaml:"memory"`
	Omega     OmegaConfig     `yaml:"omega"`
	Agent     AgentConfig     `yaml:"agent"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MCPConfig configures the client pool.
type MCPConfig struct {
	Servers           []ServerRef   `yaml:"servers"`
	PoolSize          int           `yaml:"pool_size"`
	ConnectAttempts   int           `yaml:"connect_attempts"`
	ListCacheTTL      time.Duration `yaml:"list_cache_ttl"`
	ListCacheCapacity int           `yaml:"list_cache_capacity"`
}

// ServerRef names an MCP server endpoint by env-var indirection, matching
// keeping secrets out of the YAML file.
type ServerRef struct {
	ID              string `yaml:"id"`
	Transport       string `yaml:"transport"` // "http" | "stdio"
	URL             string `yaml:"url,omitempty"`
	BearerTokenEnv  string `yaml:"bearer_token_env,omitempty"`
	Command         string `yaml:"command,omitempty"`
	Args            []string `yaml:"args,omitempty"`
}

// SessionConfig controls the rolling-window policy.
type SessionConfig struct {
	WindowHigh int `yaml:"window_high"`
	WindowLow  int `yaml:"window_low"`
}

// MemoryConfig controls the episodic store and two-phase search.
type MemoryConfig struct {
	Backend        string  `yaml:"backend"` // "memory" | "sqlite"
	SQLitePath     string  `yaml:"sqlite_path,omitempty"`
	Dimension      int     `yaml:"dimension"`
	Lambda         float64 `yaml:"lambda"`
	OversampleK    int     `yaml:"oversample_k"`
	Threshold      float64 `yaml:"threshold"`
	MaxRecall      int     `yaml:"max_recall"`
	LearningRate   float64 `yaml:"learning_rate"`
	DiscountFactor float64 `yaml:"discount_factor"`
	DecayEveryN    int     `yaml:"decay_every_turns"`
	DecayFactor    float64 `yaml:"decay_factor"`
}

// OmegaConfig is currently parameter-free; the router is a pure function of
// its inputs, kept here for symmetry with the rest of the config tree.
type OmegaConfig struct{}

// AgentConfig bounds the turn engine's tool loop.
type AgentConfig struct {
	MaxToolRounds int           `yaml:"max_tool_rounds"`
	Model         string        `yaml:"model"`
	InferenceURL  string        `yaml:"inference_url"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DispatchConfig bounds the dispatch fabric's queues and pools.
type DispatchConfig struct {
	InboundQueueSize   int           `yaml:"inbound_queue_size"`
	ForegroundQueue    int           `yaml:"foreground_queue_size"`
	ForegroundWorkers  int           `yaml:"foreground_workers"`
	ForegroundDeadline time.Duration `yaml:"foreground_deadline"`
	BackgroundQueue    int           `yaml:"background_queue_size"`
	BackgroundWorkers  int           `yaml:"background_workers"`
	BackgroundDeadline time.Duration `yaml:"background_deadline"`
	SessionGate        string        `yaml:"session_gate"` // "memory" | "distributed"
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a Config with conservative, production-shaped defaults.
func Default() Config {
	return Config{
		MCP: MCPConfig{
			PoolSize:          2,
			ConnectAttempts:   5,
			ListCacheTTL:      30 * time.Second,
			ListCacheCapacity: 64,
		},
		Session: SessionConfig{WindowHigh: 40, WindowLow: 20},
		Memory: MemoryConfig{
			Backend:        "memory",
			Dimension:      256,
			Lambda:         0.6,
			OversampleK:    3,
			Threshold:      0.2,
			MaxRecall:      5,
			LearningRate:   0.3,
			DiscountFactor: 0.9,
			DecayEveryN:    50,
			DecayFactor:    0.985,
		},
		Agent: AgentConfig{
			MaxToolRounds:  8,
			Model:          "gpt-4o-mini",
			RequestTimeout: 60 * time.Second,
		},
		Dispatch: DispatchConfig{
			InboundQueueSize:   256,
			ForegroundQueue:    64,
			ForegroundWorkers:  8,
			ForegroundDeadline: 120 * time.Second,
			BackgroundQueue:    128,
			BackgroundWorkers:  4,
			BackgroundDeadline: 300 * time.Second,
			SessionGate:        "memory",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path as YAML over the defaults and applies environment
// overrides. Invalid values log a warning (via warn) and fall back to the
// existing default rather than aborting the load.
func Load(path string, warn func(msg string, args ...any)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg, warn)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, warn func(msg string, args ...any)) {
	if v := os.Getenv("AGENTCORE_FOREGROUND_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatch.ForegroundWorkers = n
		} else if warn != nil {
			warn("invalid AGENTCORE_FOREGROUND_WORKERS, keeping default", "value", v)
		}
	}
	if v := os.Getenv("AGENTCORE_BACKGROUND_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatch.BackgroundWorkers = n
		} else if warn != nil {
			warn("invalid AGENTCORE_BACKGROUND_WORKERS, keeping default", "value", v)
		}
	}
	if v := os.Getenv("AGENTCORE_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("AGENTCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Watcher hot-reloads the safe-to-change subset of Config (queue capacities,
// timeouts, model name, log level) whenever path changes on disk. Connection
// lifecycle fields (MCP servers, persistence paths) are read once at Load
// and never hot-swapped.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	onSwap  func(Config)
	warn    func(string, ...any)
}

// NewWatcher starts watching path for writes and invoking onSwap with a
// freshly reloaded Config on each change.
func NewWatcher(path string, warn func(string, ...any), onSwap func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w := &Watcher{watcher: fw, path: path, onSwap: onSwap, warn: warn}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path, w.warn)
			if err != nil {
				if w.warn != nil {
					w.warn("config reload failed, keeping previous config", "error", err.Error())
				}
				continue
			}
			w.onSwap(safeSubset(cfg))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.warn != nil {
				w.warn("config watcher error", "error", err.Error())
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.watcher.Close() }

// safeSubset zeroes out fields that must not be hot-swapped so callers that
// merge onSwap's argument into a live Config never clobber connection
// lifecycle state.
func safeSubset(cfg Config) Config {
	cfg.MCP.Servers = nil
	cfg.Memory.SQLitePath = ""
	return cfg
}
