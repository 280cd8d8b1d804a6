package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads an EngineConfig from a YAML file at path, expands environment
// variables in its content, and fills any field the file left zero-valued
// from Defaults(). A missing file is not an error: Load falls back to
// Defaults() entirely, matching the teacher's "config directory is
// optional, env vars always work" loader philosophy.
func Load(path string) (*EngineConfig, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigNotFound, err)
	}

	data = ExpandEnv(data)

	var fromFile EngineConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := mergo.Merge(&fromFile, cfg); err != nil {
		return nil, fmt.Errorf("merging config defaults: %w", err)
	}

	if err := Validate(fromFile); err != nil {
		return nil, err
	}
	return &fromFile, nil
}
