// Package tool implements the tool calling subsystem that lets the agent loop
// invoke structured capabilities (documentation lookups, web searches,
// repository reads) with schema validated arguments, consistent error handling
// and metadata for model guidance.
package tool

import (
	"fmt"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/internal/util"
)

// Tool defines the interface for extending the agent with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Return errors instead of panicking
//   - Be safe for concurrent use; one round may run several calls at once
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool with validated arguments. The result is rendered
	// as text for the model: strings are passed through, other values are
	// encoded as JSON.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents a single parameter validation failure.
type ValidationError = util.ValidationError

// ValidationErrors lists every violated field of one input.
type ValidationErrors = util.ValidationErrors

// Error codes carried by ToolError.
const (
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodePanic           = "PANIC"
)

// ToolError represents errors that occur during tool resolution or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap maps the code onto the matching core sentinel so callers can use errors.Is.
func (e *ToolError) Unwrap() error {
	switch e.Code {
	case CodeUnknownTool:
		return core.ErrUnknownTool
	case CodeValidationError:
		return core.ErrInvalidToolInput
	case CodeTimeout:
		return core.ErrToolTimeout
	case CodeExecutionError, CodePanic:
		return core.ErrToolExecution
	default:
		return nil
	}
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Definition is the model-facing declaration of a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefinitionOf builds the declaration for t.
func DefinitionOf(t Tool) Definition {
	return Definition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}
