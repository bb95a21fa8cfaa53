package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies why an execution attempt failed.
type Category string

const (
	CategorySyntax        Category = "syntax"
	CategoryRuntime       Category = "runtime"
	CategorySecurity      Category = "security"
	CategoryTimeout       Category = "timeout"
	CategoryResource      Category = "resource"
	CategoryCompatibility Category = "compatibility"
	CategoryUnknown       Category = "unknown"
)

var (
	// ErrContextBusy is returned when an attempt starts on a context whose
	// previous attempt was never cleaned up.
	ErrContextBusy = errors.New("execution context already has a live attempt; call Cleanup before starting another")

	// ErrLoopStopped is returned when work is posted to a stopped event loop.
	ErrLoopStopped = errors.New("event loop stopped")
)

// ExecutionError is the structured failure carried by an ExecutionResult.
type ExecutionError struct {
	Message    string   `json:"message"`
	Category   Category `json:"category"`
	Suggestion string   `json:"suggestion,omitempty"`
	Line       int      `json:"line,omitempty"`
	Column     int      `json:"column,omitempty"`
}

func (e *ExecutionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error at line %d: %s", e.Category, e.Line, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// NewError builds an ExecutionError with a suggestion keyed off the message.
func NewError(cat Category, msg string) *ExecutionError {
	return &ExecutionError{
		Message:    msg,
		Category:   cat,
		Suggestion: Suggest(cat, msg),
	}
}

// suggestion rules are checked in order; the first needle found in the
// lower-cased message wins.
var suggestions = []struct {
	needle string
	text   string
}{
	{"is not defined", "Check the spelling of the name, and declare variables before using them."},
	{"is not a function", "The value being called is not a function; check the method name and the object it belongs to."},
	{"cannot read property", "A value is undefined or null; make sure the object exists before reading from it."},
	{"cannot read properties", "A value is undefined or null; make sure the object exists before reading from it."},
	{"unexpected end of input", "A bracket, brace or parenthesis is not closed."},
	{"unexpected token", "Look for a missing comma, bracket or quote near the reported line."},
	{"already been declared", "A name is declared twice in the same scope; rename one of the declarations."},
	{"maximum call stack", "A function calls itself without a stopping condition."},
	{"webgl", "This fragment needs WebGL; try a 2D canvas version instead."},
	{"mirror", "The 3D library could not be loaded from any source; check the network and retry."},
	{"three", "Make sure the fragment uses the THREE namespace the way three.js r150+ expects."},
}

var categorySuggestions = map[Category]string{
	CategorySyntax:        "Fix the syntax error; the line number points at where parsing stopped.",
	CategoryRuntime:       "The code started but threw; check the values used near the reported line.",
	CategorySecurity:      "Remove infinite loops, dynamic evaluation and network access from the fragment.",
	CategoryTimeout:       "Keep setup work short and move animation into requestAnimationFrame callbacks.",
	CategoryResource:      "An external library could not be loaded; try again later.",
	CategoryCompatibility: "The rendering surface lacks a required capability; use a 2D canvas fragment.",
	CategoryUnknown:       "Something unexpected happened; simplify the fragment and try again.",
}

// Suggest returns a short remedy for a failure.
func Suggest(cat Category, msg string) string {
	lower := strings.ToLower(msg)
	if cat != CategorySecurity && cat != CategoryTimeout {
		for _, s := range suggestions {
			if strings.Contains(lower, s.needle) {
				return s.text
			}
		}
	}
	if s, ok := categorySuggestions[cat]; ok {
		return s
	}
	return categorySuggestions[CategoryUnknown]
}
