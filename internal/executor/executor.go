// Package executor defines the contracts shared by every fragment executor:
// the Executor interface, requests and results, the error taxonomy and the
// ExecutionContext that owns a rendering surface for one attempt.
package executor

import (
	"context"
	"time"
)

// ExecutionRequest is one attempt to run a fragment against a context.
type ExecutionRequest struct {
	Code    string   `json:"code"`
	Context *Context `json:"-"`
	Options Options  `json:"options"`
}

// ExecutionResult is the outcome of one attempt. It is produced once and not
// modified afterwards.
type ExecutionResult struct {
	Success              bool            `json:"success"`
	Error                *ExecutionError `json:"error,omitempty"`
	ExecutionTimeMs      float64         `json:"executionTimeMs"`
	DetectedTechnologies []Technology    `json:"detectedTechnologies"`
	MemoryUsageBytes     *float64        `json:"memoryUsageBytes,omitempty"`
	Executor             string          `json:"executor,omitempty"`
	Logs                 []string        `json:"logs,omitempty"`
}

// Failed builds a failure result.
func Failed(err *ExecutionError, elapsed time.Duration, techs ...Technology) *ExecutionResult {
	return &ExecutionResult{
		Error:                err,
		ExecutionTimeMs:      Millis(elapsed),
		DetectedTechnologies: techs,
	}
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Descriptor is the static registration data of an executor variant.
type Descriptor struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Technologies []Technology `json:"technologies"`
}

// Supports reports whether t is one of the descriptor's technologies.
func (d Descriptor) Supports(t Technology) bool {
	for _, s := range d.Technologies {
		if s == t {
			return true
		}
	}
	return false
}

// Executor runs one technology's fragments against an execution context.
//
// Execute converts every failure into a result; the error return is reserved
// for contract violations and is treated by callers as a runtime failure.
// Cleanup is idempotent and safe on a context that never executed.
type Executor interface {
	Descriptor() Descriptor
	Analyze(code string) Analysis
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
	Cleanup(ec *Context)
	Supports(t Technology) bool
	CanExecute(code string) bool
}
