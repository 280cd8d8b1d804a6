package pipeline

import (
	"context"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/trace"
)

// fakeBlock is a configurable block.Block/block.MultiplierBlock used only by
// this package's tests, standing in for a real builtin block so the
// executor/processor/pipeline construction logic can be exercised without
// depending on pkg/block/builtin.
type fakeBlock struct {
	contract block.Contract
	run      func(execCtx *trace.Context) (map[string]any, error)
	multiply func(execCtx *trace.Context) ([]map[string]any, error)
}

func (b *fakeBlock) Contract() block.Contract { return b.contract }

func (b *fakeBlock) Execute(_ context.Context, execCtx *trace.Context) (map[string]any, error) {
	if b.run != nil {
		return b.run(execCtx)
	}
	out := map[string]any{}
	for _, o := range b.contract.Outputs {
		if o == "*" {
			continue
		}
		out[o] = nil
	}
	return out, nil
}

func (b *fakeBlock) ExecuteMultiplier(_ context.Context, execCtx *trace.Context) ([]map[string]any, error) {
	if b.multiply != nil {
		return b.multiply(execCtx)
	}
	return nil, nil
}

func newFakeFactory(contract block.Contract) block.Factory {
	return func(map[string]any) (block.Block, error) {
		return &fakeBlock{contract: contract}, nil
	}
}

func newFakeFactoryFn(contract block.Contract, run func(execCtx *trace.Context) (map[string]any, error)) block.Factory {
	return func(map[string]any) (block.Block, error) {
		return &fakeBlock{contract: contract, run: run}, nil
	}
}

func newFakeMultiplierFactory(contract block.Contract, multiply func(execCtx *trace.Context) ([]map[string]any, error)) block.Factory {
	return func(map[string]any) (block.Block, error) {
		return &fakeBlock{contract: contract, multiply: multiply}, nil
	}
}
