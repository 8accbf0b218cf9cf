package tools

import (
	"encoding/json"
	"fmt"
)

// ErrToolNotFound is returned when a tool call names a tool that is not
// registered. It is a recoverable condition: the caller reports it back
// to the model as the tool's result instead of failing the run.
type ErrToolNotFound struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool not found: %s", e.ToolName)
}

// Result renders the error as the JSON tool result shown to the model,
// e.g. {"error":"tool not found: lookup_species"}.
func (e *ErrToolNotFound) Result() string {
	b, _ := json.Marshal(map[string]string{"error": e.Error()})
	return string(b)
}
