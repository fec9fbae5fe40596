package harness

import (
	"github.com/roach88/macrome/internal/engine"
	"github.com/roach88/macrome/internal/ir"
)

// StepEvent records what one step did.
type StepEvent struct {
	Seq    int            `json:"seq"`
	Op     string         `json:"op"`
	Path   string         `json:"path,omitempty"`
	Report *engine.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Steps logs every step in order.
	Steps []StepEvent `json:"steps"`

	// Tree is the final tree, path to contents.
	Tree map[string]string `json:"tree"`

	// Failures are the generator failures the engine journaled.
	Failures []ir.FailureRecord `json:"failures,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepEvent{},
		Tree:   make(map[string]string),
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends ev to the step log.
func (r *Result) AddStep(ev StepEvent) {
	r.Steps = append(r.Steps, ev)
}
