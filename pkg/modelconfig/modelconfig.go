// Package modelconfig is the LLM/embedding config service: fallback-chain
// lookup, connection testing, and provider-agnostic call preparation.
package modelconfig

import (
	"context"
	"strings"
	"time"

	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
)

// ConnectionTester issues a minimal provider call to verify reachability.
// Concrete provider adapters are out of scope (spec §1); callers inject
// one, or Service.TestConnection always reports failure without it.
type ConnectionTester interface {
	Test(ctx context.Context, cfg storage.ModelConfig) error
}

// Service wraps the storage layer with the fallback-chain lookup and
// call-preparation logic described in spec §4.5.
type Service struct {
	store    *storage.Store
	envModel string // LLM_MODEL env fallback, last resort in the chain
	tester   ConnectionTester
}

func New(store *storage.Store, envModel string, tester ConnectionTester) *Service {
	return &Service{store: store, envModel: envModel, tester: tester}
}

// Get resolves a model config by the fallback chain: requested name →
// `default` row → first row by insertion order → (LLM only) env-derived
// fallback → LLMConfigNotFoundError.
func (s *Service) Get(ctx context.Context, kind storage.ModelKind, name string) (storage.ModelConfig, error) {
	if name != "" {
		if cfg, found, err := s.store.GetModel(ctx, kind, name); err != nil {
			return storage.ModelConfig{}, err
		} else if found {
			return cfg, nil
		}
	}

	if cfg, found, err := s.store.GetDefaultModel(ctx, kind); err != nil {
		return storage.ModelConfig{}, err
	} else if found {
		return cfg, nil
	}

	all, err := s.store.ListModels(ctx, kind)
	if err != nil {
		return storage.ModelConfig{}, err
	}
	if len(all) > 0 {
		return all[0], nil
	}

	if kind == storage.ModelKindLLM && s.envModel != "" {
		return storage.ModelConfig{Name: "default", ModelName: s.envModel}, nil
	}

	return storage.ModelConfig{}, engineerr.NewLLMConfigNotFoundError(name)
}

func (s *Service) List(ctx context.Context, kind storage.ModelKind) ([]storage.ModelConfig, error) {
	return s.store.ListModels(ctx, kind)
}

func (s *Service) Save(ctx context.Context, kind storage.ModelKind, cfg storage.ModelConfig) error {
	return s.store.SaveModel(ctx, kind, cfg)
}

func (s *Service) Delete(ctx context.Context, kind storage.ModelKind, name string) (bool, error) {
	return s.store.DeleteModel(ctx, kind, name)
}

func (s *Service) SetDefault(ctx context.Context, kind storage.ModelKind, name string) error {
	return s.store.SetDefaultModel(ctx, kind, name)
}

// ConnectionTestResult is the {success, message, latency_ms} shape spec §4.5 names.
type ConnectionTestResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMs int64  `json:"latency_ms"`
}

// TestConnection issues a minimal call against cfg with a 10s timeout.
func (s *Service) TestConnection(ctx context.Context, cfg storage.ModelConfig) ConnectionTestResult {
	if s.tester == nil {
		return ConnectionTestResult{Success: false, Message: "no connection tester configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	err := s.tester.Test(ctx, cfg)
	elapsed := time.Since(start)
	if err != nil {
		return ConnectionTestResult{Success: false, Message: err.Error(), LatencyMs: elapsed.Milliseconds()}
	}
	return ConnectionTestResult{Success: true, Message: "ok", LatencyMs: elapsed.Milliseconds()}
}

// CallParams is the provider-agnostic parameter set prepare_llm_call yields.
type CallParams struct {
	Model    string
	Endpoint string
	APIKey   string
}

// PrepareCall implements spec §4.5's provider-specific normalisation: for
// ollama, the model name is prefixed "ollama/" and the endpoint is
// stripped of any "/v1/..." suffix to yield a base URL with no API key;
// other providers pass the model name through unchanged with endpoint +
// API key supplied.
func PrepareCall(cfg storage.ModelConfig) CallParams {
	if cfg.Provider == "ollama" {
		return CallParams{
			Model:    "ollama/" + cfg.ModelName,
			Endpoint: stripV1Suffix(cfg.Endpoint),
		}
	}
	return CallParams{Model: cfg.ModelName, Endpoint: cfg.Endpoint, APIKey: cfg.APIKey}
}

func stripV1Suffix(endpoint string) string {
	if idx := strings.Index(endpoint, "/v1"); idx != -1 {
		return endpoint[:idx]
	}
	return endpoint
}
