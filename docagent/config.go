package docagent

import (
	"time"

	"github.com/martinemde/docagent/unifiedllm"
)

// FallbackCheckpoint stops the session at or after Iteration when fewer
// than MinChanges confirmed document changes have been observed.
type FallbackCheckpoint struct {
	Iteration  int `json:"iteration" yaml:"iteration"`
	MinChanges int `json:"min_changes" yaml:"min_changes"`
}

// FallbackPolicy is the deterministic stop rule applied when the
// convergence check cannot reach the model.
type FallbackPolicy struct {
	Checkpoints []FallbackCheckpoint
	// HardStop stops unconditionally at or after this iteration. Zero disables it.
	HardStop int
}

// DefaultFallbackPolicy returns the 5/10/15/20 schedule.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		Checkpoints: []FallbackCheckpoint{
			{Iteration: 5, MinChanges: 1},
			{Iteration: 10, MinChanges: 2},
			{Iteration: 15, MinChanges: 3},
		},
		HardStop: 20,
	}
}

// ShouldStop reports whether the session should end and why.
func (p FallbackPolicy) ShouldStop(iteration, confirmedChanges int) (bool, string) {
	if p.HardStop > 0 && iteration >= p.HardStop {
		return true, "iteration limit for unchecked progress reached"
	}
	for _, cp := range p.Checkpoints {
		if iteration == cp.Iteration && confirmedChanges < cp.MinChanges {
			return true, "insufficient document progress by this iteration"
		}
	}
	return false, ""
}

// LoopConfig holds the iteration controller's tunable policy.
type LoopConfig struct {
	MaxIterations       int `json:"max_iterations"`
	StatusCheckInterval int `json:"status_check_interval"` // periodic convergence check every K iterations
	RepetitionThreshold int `json:"repetition_threshold"`  // identical responses before corrective instruction
	StallThreshold      int `json:"stall_threshold"`       // iterations without new tool output before giving up
	NoToolCallLimit     int `json:"no_tool_call_limit"`
	ChangeStopCount     int `json:"change_stop_count"` // confirmed changes that end the session; 0 disables

	ToolAttempts    int                    `json:"tool_attempts"`
	ToolBaseTimeout time.Duration          `json:"tool_base_timeout"`
	ToolBackoff     unifiedllm.RetryPolicy `json:"-"`

	Fallback FallbackPolicy `json:"-"`

	// TrustedArgTools receive document_id and user_id from the request,
	// overriding whatever the model supplied. Matched by exact name.
	TrustedArgTools []string `json:"trusted_arg_tools"`
	// MutatingTools are verified by re-reading the document after success.
	MutatingTools []string `json:"mutating_tools"`

	EnablePlanning bool `json:"enable_planning"`

	SummaryMessages  int            `json:"summary_messages"`   // history messages included in status-check context
	SummaryCharLimit int            `json:"summary_char_limit"` // per-message truncation in summaries
	ToolOutputLimits map[string]int `json:"tool_output_limits,omitempty"`
}

// DefaultTrustedArgTools is the allow-list of tools that address a document.
var DefaultTrustedArgTools = []string{
	"search_keyword",
	"semantic_search",
	"read_lines",
	"insert_lines",
	"edit_lines",
	"delete_lines",
	"get_document_metadata",
}

// DefaultMutatingTools are the tools that claim to change document content.
var DefaultMutatingTools = []string{
	"insert_lines",
	"edit_lines",
	"delete_lines",
}

// DefaultLoopConfig returns the default controller policy.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:       32,
		StatusCheckInterval: 5,
		RepetitionThreshold: 3,
		StallThreshold:      6,
		NoToolCallLimit:     2,
		ChangeStopCount:     3,
		ToolAttempts:        3,
		ToolBaseTimeout:     10 * time.Second,
		ToolBackoff: unifiedllm.RetryPolicy{
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
			Multiplier: 2,
			Jitter:     true,
		},
		Fallback:         DefaultFallbackPolicy(),
		TrustedArgTools:  append([]string(nil), DefaultTrustedArgTools...),
		MutatingTools:    append([]string(nil), DefaultMutatingTools...),
		EnablePlanning:   true,
		SummaryMessages:  6,
		SummaryCharLimit: 400,
	}
}

// withDefaults fills zero values from DefaultLoopConfig.
func (c LoopConfig) withDefaults() LoopConfig {
	d := DefaultLoopConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.StatusCheckInterval <= 0 {
		c.StatusCheckInterval = d.StatusCheckInterval
	}
	if c.RepetitionThreshold <= 0 {
		c.RepetitionThreshold = d.RepetitionThreshold
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = d.StallThreshold
	}
	if c.NoToolCallLimit <= 0 {
		c.NoToolCallLimit = d.NoToolCallLimit
	}
	if c.ToolAttempts <= 0 {
		c.ToolAttempts = d.ToolAttempts
	}
	if c.ToolBaseTimeout <= 0 {
		c.ToolBaseTimeout = d.ToolBaseTimeout
	}
	if c.ToolBackoff.Multiplier == 0 {
		c.ToolBackoff = d.ToolBackoff
	}
	if c.Fallback.Checkpoints == nil && c.Fallback.HardStop == 0 {
		c.Fallback = d.Fallback
	}
	if c.TrustedArgTools == nil {
		c.TrustedArgTools = d.TrustedArgTools
	}
	if c.MutatingTools == nil {
		c.MutatingTools = d.MutatingTools
	}
	if c.SummaryMessages <= 0 {
		c.SummaryMessages = d.SummaryMessages
	}
	if c.SummaryCharLimit <= 0 {
		c.SummaryCharLimit = d.SummaryCharLimit
	}
	return c
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
