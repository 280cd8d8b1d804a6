// Package config loads and validates the execution engine's process-level
// configuration: storage location, block discovery roots, hot-reload
// debounce, and default usage constraints.
package config

import (
	"time"

	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// BlockDirs names the three discovery roots the registry scans, in
// override-shadow order (builtin shadows custom and user; spec §4.1).
type BlockDirs struct {
	Builtin string `yaml:"builtin"`
	Custom  string `yaml:"custom"`
	User    string `yaml:"user"`
}

// EngineConfig is the umbrella object returned by Load, used throughout
// the engine process — the config analogue of the teacher's Config.
type EngineConfig struct {
	// StoragePath is the sqlite database file path (":memory:" for tests).
	StoragePath string `yaml:"storage_path"`

	BlockDirs BlockDirs `yaml:"block_dirs"`

	// ReloadDebounce is how long the block watcher waits after the last
	// filesystem event before rediscovering (spec §4.1).
	ReloadDebounce time.Duration `yaml:"reload_debounce"`

	// LLMModelEnv is the `LLM_MODEL` environment-variable name consulted as
	// the last resort in modelconfig's fallback chain (spec §4.5).
	LLMModelEnv string `yaml:"llm_model_env"`

	// DefaultConstraints is loaded from the config file (Unbounded unless
	// overridden). No engine component reads it: each execution uses the
	// constraints its caller passes in.
	DefaultConstraints usage.Constraints `yaml:"default_constraints"`

	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig drives pkg/cleanup's background purge loop: terminal
// jobs (and their records, cascaded) older than JobRetention are deleted
// every CleanupInterval.
type RetentionConfig struct {
	JobRetention    time.Duration `yaml:"job_retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ConfigDir returns the builtin block directory (BlockDirs.Builtin), for
// display in health/debug output.
func (c EngineConfig) ConfigDir() string {
	return c.BlockDirs.Builtin
}
