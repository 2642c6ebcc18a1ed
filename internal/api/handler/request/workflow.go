package request

import "encoding/json"

// ValidateWorkflow carries a workflow graph in the backend's API format
// for structural validation.
type ValidateWorkflow struct {
	Graph json.RawMessage `json:"graph" validate:"required"`
}
