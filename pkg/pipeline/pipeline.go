// Package pipeline is the execution engine: block contract wiring,
// accumulated state, trace capture, dynamic fan-out, and the job
// processor outer loop that drives it (spec §4.2).
package pipeline

import (
	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
)

// Pipeline is an ordered sequence of instantiated block instances. Built
// once via New and then executed any number of times.
type Pipeline struct {
	Name      string
	BlockDefs []block.BlockDef

	instances []block.Block
}

// New materialises a pipeline: looks up each block class in the registry,
// instantiates it with its config mapping, and validates multiplier
// placement (spec §4.2 ¶1).
func New(registry *block.Registry, name string, blockDefs []block.BlockDef) (*Pipeline, error) {
	instances := make([]block.Block, 0, len(blockDefs))
	for _, def := range blockDefs {
		factory, ok := registry.GetClass(def.Type)
		if !ok {
			return nil, engineerr.NewBlockNotFoundError(def.Type, registry.ListTypes())
		}
		instance, err := factory(def.Config)
		if err != nil {
			return nil, engineerr.NewValidationError(
				"failed to construct block "+def.Type+": "+err.Error(),
				map[string]any{"block_type": def.Type},
			)
		}
		instances = append(instances, instance)
	}

	p := &Pipeline{Name: name, BlockDefs: blockDefs, instances: instances}
	if err := p.validateMultiplierPlacement(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) validateMultiplierPlacement() error {
	multiplierIndices := make([]int, 0, 1)
	for i, b := range p.instances {
		if b.Contract().IsMultiplier {
			multiplierIndices = append(multiplierIndices, i)
		}
	}
	if len(multiplierIndices) > 1 {
		return engineerr.NewValidationError("only one multiplier block allowed per pipeline", nil)
	}
	if len(multiplierIndices) == 1 && multiplierIndices[0] != 0 {
		return engineerr.NewValidationError("multiplier block must be first in pipeline", nil)
	}
	return nil
}

// IsMultiplier reports whether this pipeline's leading block fans out.
func (p *Pipeline) IsMultiplier() bool {
	return len(p.instances) > 0 && p.instances[0].Contract().IsMultiplier
}

// validateOutput enforces the output-schema subset rule (spec §4.2 step 2f,
// §8 invariant #3): the returned key set must be a subset of the block's
// declared outputs unless outputs contains the "*" wildcard.
func validateOutput(contract block.Contract, result map[string]any) error {
	if contract.AllowsAnyOutput() {
		return nil
	}
	declared := make(map[string]struct{}, len(contract.Outputs))
	for _, o := range contract.Outputs {
		declared[o] = struct{}{}
	}
	var extra []string
	for k := range result {
		if _, ok := declared[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		return engineerr.NewValidationError(
			"block "+contract.Name+" returned undeclared fields",
			map[string]any{
				"block_type":      contract.Name,
				"declared_outputs": contract.Outputs,
				"extra_fields":    extra,
			},
		)
	}
	return nil
}
