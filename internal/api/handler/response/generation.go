package response

import (
	"time"

	"atelier/internal/api/models"
)

// Generation is the response for a generation record.
type Generation struct {
	ID             uint                    `json:"id"`
	Status         models.GenerationStatus `json:"status"`
	Prompt         string                  `json:"prompt"`
	NegativePrompt string                  `json:"negativePrompt,omitempty"`
	ModelFilename  string                  `json:"modelFilename"`
	Steps          int                     `json:"steps"`
	Seed           int64                   `json:"seed"`
	DeploymentType models.DeploymentType   `json:"deploymentType"`
	WorkflowSource models.SelectionSource  `json:"workflowSource"`
	WorkflowOrigin string                  `json:"workflowOrigin"`
	PromptID       string                  `json:"promptId,omitempty"`
	Outputs        []string                `json:"outputs"`
	DurationMs     int64                   `json:"durationMs"`
	LastError      string                  `json:"lastError,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// GenerationAccepted acknowledges an accepted generation before any image
// exists. Watch the record or the progress stream for the outcome.
type GenerationAccepted struct {
	ID             uint                    `json:"id"`
	Status         models.GenerationStatus `json:"status"`
	Seed           int64                   `json:"seed"`
	DeploymentType models.DeploymentType   `json:"deploymentType"`
	WorkflowSource models.SelectionSource  `json:"workflowSource"`
	WorkflowOrigin string                  `json:"workflowOrigin"`
}
