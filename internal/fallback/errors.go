package fallback

import (
	"fmt"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// ToolError reports a failed or unparseable nvidia-settings invocation.
// It matches display.ErrExternalTool and the underlying cause.
type ToolError struct {
	Op     string
	Target string
	Err    error
	Output string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("nvidia-settings %s %s: %v", e.Op, e.Target, e.Err)
	if e.Output != "" {
		msg += " (output: " + e.Output + ")"
	}
	return msg
}

// Unwrap exposes both the taxonomy class and the cause.
func (e *ToolError) Unwrap() []error {
	return []error{display.ErrExternalTool, e.Err}
}

// maxOutputInError bounds the tool output quoted in a ToolError.
const maxOutputInError = 200

func toolError(op, target string, err error, output string) *ToolError {
	if len(output) > maxOutputInError {
		output = output[:maxOutputInError] + "..."
	}
	return &ToolError{Op: op, Target: target, Err: err, Output: output}
}
