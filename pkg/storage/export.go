package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// exportLine is the one-record-per-line NDJSON shape (spec §6).
type exportLine struct {
	ID               int64          `json:"id"`
	Metadata         map[string]any `json:"metadata"`
	Status           RecordStatus   `json:"status"`
	AccumulatedState map[string]any `json:"accumulated_state"`
	CreatedAt        string         `json:"created_at,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`
}

// ExportJSONL serialises matching records to newline-delimited JSON. The
// last trace entry's accumulated_state is flattened into
// `accumulated_state`, with any key already present in `metadata` removed
// to avoid duplication (spec §4.4 — flagged in spec §9 as a source
// ambiguity worth confirming with product, but implemented literally here
// since no contradicting signal exists in original_source/).
func (s *Store) ExportJSONL(ctx context.Context, status *RecordStatus, jobID *int64) (string, error) {
	records, err := s.ListRecords(ctx, RecordFilter{Status: status, JobID: jobID, Limit: 999999})
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		accumulated := map[string]any{}
		if len(rec.Trace) > 0 {
			full := rec.Trace[len(rec.Trace)-1].AccumulatedState
			for k, v := range full {
				if _, dup := rec.Metadata[k]; !dup {
					accumulated[k] = v
				}
			}
		}
		line := exportLine{
			ID:               rec.ID,
			Metadata:         rec.Metadata,
			Status:           rec.Status,
			AccumulatedState: accumulated,
			CreatedAt:        rec.CreatedAt.Format("2006-01-02T15:04:05.999999"),
			UpdatedAt:        rec.UpdatedAt.Format("2006-01-02T15:04:05.999999"),
		}
		b, err := json.Marshal(line)
		if err != nil {
			return "", fmt.Errorf("marshalling export line for record %d: %w", rec.ID, err)
		}
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n"), nil
}
