// Command datagenflow-debug is a one-shot driver for exercising a single
// pipeline definition against a single seed object, without a running
// engine process or a persistent database. It loads a pipeline JSON file
// and a seed JSON/Markdown file named by flags, opens a fresh in-memory
// store (the run itself writes nothing to it), executes the pipeline
// in-process on the file's first seed, and prints the results with their
// trace(s) as indented JSON — the Go analogue of the original project's
// debug_pipeline.py one-off script.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/block/builtin"
	"github.com/codeready-toolchain/datagenflow/pkg/pipeline"
	"github.com/codeready-toolchain/datagenflow/pkg/seedfile"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

func main() {
	pipelinePath := flag.String("pipeline", "", "path to a pipeline definition JSON file ({\"name\":..., \"blocks\":[...]})")
	seedPath := flag.String("seed", "", "path to a seed JSON/Markdown file")
	flag.Parse()

	if *pipelinePath == "" || *seedPath == "" {
		fmt.Fprintln(os.Stderr, "usage: datagenflow-debug -pipeline <file> -seed <file>")
		os.Exit(2)
	}

	if err := run(*pipelinePath, *seedPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type pipelineFile struct {
	Name        string             `json:"name"`
	Blocks      []block.BlockDef   `json:"blocks"`
	Constraints *usage.Constraints `json:"constraints,omitempty"`
}

func run(pipelinePath, seedPath string) error {
	ctx := context.Background()

	store, err := storage.Open(ctx, ":memory:", storage.EnvFallback{})
	if err != nil {
		return fmt.Errorf("opening in-memory store: %w", err)
	}
	defer store.Close()

	pf, err := loadPipelineFile(pipelinePath)
	if err != nil {
		return fmt.Errorf("loading pipeline file: %w", err)
	}

	registry := block.NewRegistry()
	registry.RegisterBuiltin("TextGenerator", builtin.NewTextGenerator, builtin.TextGeneratorContract)
	registry.RegisterBuiltin("Validator", builtin.NewValidator, builtin.ValidatorContract)
	registry.RegisterBuiltin("MarkdownMultiplier", builtin.NewMarkdownMultiplier, builtin.MarkdownMultiplierContract)

	pl, err := pipeline.New(registry, pf.Name, pf.Blocks)
	if err != nil {
		return fmt.Errorf("constructing pipeline: %w", err)
	}

	seeds, err := seedfile.Load(seedPath)
	if err != nil {
		return fmt.Errorf("loading seed file: %w", err)
	}
	if len(seeds) == 0 {
		return fmt.Errorf("seed file %q produced no seeds", seedPath)
	}

	constraints := usage.Unbounded()
	if pf.Constraints != nil {
		constraints = *pf.Constraints
	}

	results, err := pl.Execute(ctx, seeds[0].Metadata, pipeline.Options{Constraints: constraints})
	if err != nil {
		return fmt.Errorf("executing pipeline: %w", err)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func loadPipelineFile(path string) (pipelineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipelineFile{}, err
	}
	var pf pipelineFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return pipelineFile{}, err
	}
	return pf, nil
}
