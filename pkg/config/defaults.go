package config

import (
	"time"

	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// Defaults returns the engine's built-in configuration defaults, merged
// under whatever a loaded YAML file supplies (see Load).
func Defaults() EngineConfig {
	return EngineConfig{
		StoragePath: "./data/datagenflow.db",
		BlockDirs: BlockDirs{
			Builtin: "./blocks/builtin",
			Custom:  "./blocks/custom",
			User:    "./blocks/user",
		},
		ReloadDebounce:     500 * time.Millisecond,
		LLMModelEnv:        "LLM_MODEL",
		DefaultConstraints: usage.Unbounded(),
		Retention: RetentionConfig{
			JobRetention:    30 * 24 * time.Hour,
			CleanupInterval: 24 * time.Hour,
		},
	}
}
