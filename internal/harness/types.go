package harness

import (
	"github.com/roach88/sensorq/internal/translate"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and the oracle comparison match.
	Pass bool `json:"pass"`

	// Plan is the translated plan. Nil when translation failed.
	Plan *translate.Plan `json:"-"`

	// Value is the executed result reduced to identities (sequences of
	// objects) or plain values.
	Value any `json:"value,omitempty"`

	// Oracle is the result of evaluating the original query locally.
	// OracleErr is set instead when local evaluation failed.
	Oracle    any    `json:"oracle,omitempty"`
	OracleErr string `json:"oracle_error,omitempty"`

	// Err is the translation or execution error, if any.
	Err error `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
