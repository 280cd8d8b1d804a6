package storage

import (
	"time"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/trace"
	"github.com/codeready-toolchain/datagenflow/pkg/usage"
)

// JobStatus mirrors spec §3's Job.status enum. The last four are terminal.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusStopped   JobStatus = "stopped"
)

// IsTerminal reports whether a status is one of the four terminal states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusStopped:
		return true
	default:
		return false
	}
}

// RecordStatus mirrors spec §3's Record.status enum.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusAccepted RecordStatus = "accepted"
	RecordStatusRejected RecordStatus = "rejected"
	RecordStatusEdited   RecordStatus = "edited"
)

// ValidationConfig carries the review UI's field-order hints.
type ValidationConfig struct {
	FieldOrder struct {
		Primary   []string `json:"primary,omitempty"`
		Secondary []string `json:"secondary,omitempty"`
		Hidden    []string `json:"hidden,omitempty"`
	} `json:"field_order"`
}

// PipelineDefinition is the {blocks, constraints} shape stored as the
// pipeline's `definition` JSON column; validation_config is kept in its
// own column (Pipeline.ValidationConfig).
type PipelineDefinition struct {
	Blocks      []block.BlockDef   `json:"blocks"`
	Constraints *usage.Constraints `json:"constraints,omitempty"`
}

// Pipeline is the durable pipeline row.
type Pipeline struct {
	ID               int64
	Name             string
	Definition       PipelineDefinition
	ValidationConfig *ValidationConfig
	CreatedAt        time.Time
}

// Job is the durable job row (the storage-side twin of the in-memory
// mirror in pkg/jobqueue).
type Job struct {
	ID               int64
	PipelineID       int64
	Status           JobStatus
	TotalSeeds       int
	CurrentSeed      int
	RecordsGenerated int
	RecordsFailed    int
	Progress         float64
	CurrentBlock     string
	CurrentStep      string
	Error            string
	StartedAt        time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	Usage            usage.Usage
}

// Record is the durable, (mostly) immutable execution artifact.
type Record struct {
	ID         int64
	PipelineID *int64
	JobID      *int64
	Output     string
	Metadata   map[string]any
	Status     RecordStatus
	Trace      []trace.Entry
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ModelKind distinguishes the llm_models and embedding_models tables.
type ModelKind string

const (
	ModelKindLLM       ModelKind = "llm"
	ModelKindEmbedding ModelKind = "embedding"
)

// ModelConfig is the LLM/embedding provider config row (spec §3).
type ModelConfig struct {
	Name       string
	Provider   string
	Endpoint   string
	APIKey     string
	ModelName  string
	Dimensions *int // embedding-only
	IsDefault  bool
}
