package engine

import "fmt"

// QuotaEnforcer counts the changes drained from one Changeset and enforces
// a maximum chain length.
//
// Unbounded causal chains are not an error by default; the enforcer only
// exists when the engine is built WithMaxChainLength.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(token string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Token: token,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a Changeset exceeds its chain length.
// The rest of that Changeset's queue is dropped; other Changesets continue.
type StepsExceededError struct {
	Token string
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("changeset %s exceeded max chain length: %d steps > %d limit",
		e.Token, e.Steps, e.Limit)
}
