package executor

import (
	"fmt"
	"time"
)

// SandboxLevel controls how strictly risky constructs are treated.
//
//   - strict: any high risk is refused and eval / Function are removed.
//   - normal: only critical risks are refused.
//   - permissive: same refusals as normal; high risks are only reported.
type SandboxLevel string

const (
	SandboxStrict     SandboxLevel = "strict"
	SandboxNormal     SandboxLevel = "normal"
	SandboxPermissive SandboxLevel = "permissive"
)

// Valid reports whether l is a known level.
func (l SandboxLevel) Valid() bool {
	switch l {
	case SandboxStrict, SandboxNormal, SandboxPermissive:
		return true
	}
	return false
}

// Options is the options bag of one attempt.
type Options struct {
	TimeoutMs       int          `json:"timeoutMs" yaml:"timeoutMs"`
	SandboxLevel    SandboxLevel `json:"sandboxLevel" yaml:"sandboxLevel"`
	EnableAnimation bool         `json:"enableAnimation" yaml:"enableAnimation"`
	EnableDebugMode bool         `json:"enableDebugMode" yaml:"enableDebugMode"`
	FallbackArt     bool         `json:"fallbackArt" yaml:"fallbackArt"`
	// ClearOnCleanup erases the drawn content when the context is cleaned up.
	ClearOnCleanup bool `json:"clearOnCleanup" yaml:"clearOnCleanup"`
}

// DefaultOptions returns the options used when a caller passes none. Decode
// request bodies on top of this value so absent keys keep their defaults.
func DefaultOptions() Options {
	return Options{
		SandboxLevel:    SandboxNormal,
		EnableAnimation: true,
		FallbackArt:     true,
	}
}

// Timeout returns the configured deadline, or def when none is set.
func (o Options) Timeout(def time.Duration) time.Duration {
	if o.TimeoutMs > 0 {
		return time.Duration(o.TimeoutMs) * time.Millisecond
	}
	return def
}

// Level returns the sandbox level, defaulting to normal.
func (o Options) Level() SandboxLevel {
	if o.SandboxLevel == "" {
		return SandboxNormal
	}
	return o.SandboxLevel
}

// Validate checks the options bag.
func (o Options) Validate() error {
	if o.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must not be negative, got %d", o.TimeoutMs)
	}
	if o.SandboxLevel != "" && !o.SandboxLevel.Valid() {
		return fmt.Errorf("unknown sandboxLevel %q", o.SandboxLevel)
	}
	return nil
}
