package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// GenerationStatus tracks a generation through its lifecycle.
type GenerationStatus string

const (
	GenerationStatusQueued    GenerationStatus = "queued"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
)

// OutputURLs is the list of produced image locations, stored as jsonb.
type OutputURLs []string

// Value implements driver.Valuer for GORM
func (o OutputURLs) Value() (driver.Value, error) {
	return json.Marshal(o)
}

// Scan implements sql.Scanner for GORM
func (o *OutputURLs) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan OutputURLs: expected []byte")
	}
	return json.Unmarshal(bytes, o)
}

// GenerationRecord is the audit row for one generation request: what was
// asked for, which deployment and workflow served it, and what came out.
type GenerationRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CallerID uint             `gorm:"index" json:"callerId"`
	Status   GenerationStatus `gorm:"default:queued;type:varchar(20)" json:"status"`

	// Request side
	Prompt         string `gorm:"not null" json:"prompt"`
	NegativePrompt string `json:"negativePrompt"`
	ModelFilename  string `json:"modelFilename"`
	Steps          int    `json:"steps"`
	Seed           int64  `json:"seed"`

	// Routing side
	DeploymentType DeploymentType  `gorm:"type:varchar(20)" json:"deploymentType"`
	WorkflowSource SelectionSource `gorm:"type:varchar(20)" json:"workflowSource"`
	WorkflowOrigin string          `json:"workflowOrigin"`

	// Backend execution id, set once the workflow is accepted
	PromptID string `gorm:"index" json:"promptId"`

	// Outcome
	Outputs    OutputURLs `gorm:"type:jsonb" json:"outputs"`
	DurationMs int64      `json:"durationMs"`
	LastError  string     `json:"lastError,omitempty"`
}
