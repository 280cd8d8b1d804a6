// Package engineerr defines the execution engine's error taxonomy.
//
// BlockExecutionError, DependencyError and TemplateError wrap an
// underlying cause (Unwrap); ValidationError carries a Detail map for
// post-mortem inspection; BlockNotFoundError and LLMConfigNotFoundError
// carry only their own fields.
package engineerr

import (
	"errors"
	"fmt"
)

// ValidationError signals a pipeline shape violation: bad multiplier
// placement, undeclared output keys, malformed config. Never swallowed —
// callers re-raise it unchanged.
type ValidationError struct {
	Message string
	Detail  map[string]any
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, detail map[string]any) *ValidationError {
	return &ValidationError{Message: message, Detail: detail}
}

// BlockNotFoundError signals an unknown block type at pipeline
// materialisation. AvailableBlocks lists every type currently registered.
type BlockNotFoundError struct {
	BlockType       string
	AvailableBlocks []string
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("block %q not found", e.BlockType)
}

func NewBlockNotFoundError(blockType string, available []string) *BlockNotFoundError {
	return &BlockNotFoundError{BlockType: blockType, AvailableBlocks: available}
}

// BlockExecutionError wraps any exception raised inside a block's
// execution, with {block_type, step, input, error} detail for post-mortem.
type BlockExecutionError struct {
	BlockType string
	Step      int
	Input     map[string]any
	Err       error
}

func (e *BlockExecutionError) Error() string {
	return fmt.Sprintf("block %q failed at step %d: %v", e.BlockType, e.Step, e.Err)
}

func (e *BlockExecutionError) Unwrap() error {
	return e.Err
}

func NewBlockExecutionError(blockType string, step int, input map[string]any, err error) *BlockExecutionError {
	return &BlockExecutionError{BlockType: blockType, Step: step, Input: input, Err: err}
}

// LLMConfigNotFoundError signals that a requested model name is unknown
// and no fallback in the chain applied.
type LLMConfigNotFoundError struct {
	Name string
}

func (e *LLMConfigNotFoundError) Error() string {
	if e.Name == "" {
		return "no llm model configured"
	}
	return fmt.Sprintf("llm model %q not found", e.Name)
}

func NewLLMConfigNotFoundError(name string) *LLMConfigNotFoundError {
	return &LLMConfigNotFoundError{Name: name}
}

// DependencyError signals a missing-dependency check failure, installer
// failure, or install timeout.
type DependencyError struct {
	Message string
	Err     error
}

func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

func NewDependencyError(message string, err error) *DependencyError {
	return &DependencyError{Message: message, Err: err}
}

// TemplateError is the single error kind for both syntax errors and
// strict-undefined variable references in block-config templates.
type TemplateError struct {
	Template string
	Missing  string
	Err      error
}

func (e *TemplateError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("undefined variable %q in template %q", e.Missing, e.Template)
	}
	return fmt.Sprintf("template %q: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func NewTemplateError(template, missing string, err error) *TemplateError {
	return &TemplateError{Template: template, Missing: missing, Err: err}
}

// As is a re-export of errors.As for callers that don't want to import
// both packages just to type-switch on an engine error.
func As(err error, target any) bool {
	return errors.As(err, target)
}
