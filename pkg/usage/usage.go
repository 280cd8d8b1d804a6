// Package usage carries cumulative token accounting and the pipeline-level
// constraint predicate that the job processor and executor both evaluate
// after every usage update.
package usage

import "time"

// Unlimited is the sentinel value encoding "no limit" on any Constraints field.
const Unlimited = -1

// Usage is the token/time counters for one execution or one job, accumulated
// across every block invocation (and, for a job, across every seed/repetition).
type Usage struct {
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	CachedTokens int        `json:"cached_tokens"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// New returns a Usage with StartTime set to now.
func New() Usage {
	return Usage{StartTime: time.Now()}
}

// TotalTokens is the derived sum of input + output tokens. Cached tokens are
// tracked separately and are not added to the total (they represent tokens
// served from a provider-side cache, not newly generated or consumed work).
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// ElapsedTime returns EndTime-StartTime, or now-StartTime if the usage
// window hasn't been closed yet.
func (u Usage) ElapsedTime() time.Duration {
	if u.EndTime != nil {
		return u.EndTime.Sub(u.StartTime)
	}
	return time.Since(u.StartTime)
}

// Stamp sets EndTime to now, if not already set.
func (u *Usage) Stamp() {
	if u.EndTime == nil {
		now := time.Now()
		u.EndTime = &now
	}
}

// Add accumulates delta into u in place: input/output/cached tokens summed.
// u's StartTime is kept unless it is zero, in which case delta's is taken.
func (u *Usage) Add(delta Usage) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
	u.CachedTokens += delta.CachedTokens
	if u.StartTime.IsZero() {
		u.StartTime = delta.StartTime
	}
}

// Constraints are optional per-pipeline execution limits. Each field holds
// Unlimited (-1) when not bounded.
type Constraints struct {
	MaxTotalTokens             int `json:"max_total_tokens"`
	MaxTotalInputTokens        int `json:"max_total_input_tokens"`
	MaxTotalOutputTokens       int `json:"max_total_output_tokens"`
	MaxTotalCachedTokens       int `json:"max_total_cached_tokens"`
	MaxTotalExecutionTimeSecs  int `json:"max_total_execution_time_seconds"`
}

// Unbounded returns a Constraints value with every field set to Unlimited.
func Unbounded() Constraints {
	return Constraints{
		MaxTotalTokens:            Unlimited,
		MaxTotalInputTokens:       Unlimited,
		MaxTotalOutputTokens:      Unlimited,
		MaxTotalCachedTokens:      Unlimited,
		MaxTotalExecutionTimeSecs: Unlimited,
	}
}

// IsExceeded checks every limit against the current usage (current >= limit)
// and returns the first limit name hit, if any. A field holding Unlimited
// never triggers.
func (c Constraints) IsExceeded(u Usage) (bool, string) {
	checks := []struct {
		limit int
		name  string
		value int
	}{
		{c.MaxTotalTokens, "max_total_tokens", u.TotalTokens()},
		{c.MaxTotalInputTokens, "max_total_input_tokens", u.InputTokens},
		{c.MaxTotalOutputTokens, "max_total_output_tokens", u.OutputTokens},
		{c.MaxTotalCachedTokens, "max_total_cached_tokens", u.CachedTokens},
		{c.MaxTotalExecutionTimeSecs, "max_total_execution_time_seconds", int(u.ElapsedTime().Seconds())},
	}
	for _, c := range checks {
		if c.limit != Unlimited && c.value >= c.limit {
			return true, c.name
		}
	}
	return false, ""
}
