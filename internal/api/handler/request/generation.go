package request

// CreateGeneration is the body of POST /generations. Everything beyond the
// prompt is optional; unset fields inherit caller settings, then the
// resolved model's defaults.
type CreateGeneration struct {
	Prompt         string  `json:"prompt" validate:"required"`
	NegativePrompt string  `json:"negativePrompt"`
	Steps          int     `json:"steps" validate:"gte=0,lte=150"`
	CFG            float64 `json:"cfg" validate:"gte=0,lte=30"`
	Width          int     `json:"width" validate:"gte=0,lte=4096"`
	Height         int     `json:"height" validate:"gte=0,lte=4096"`
	Seed           *int64  `json:"seed"`
	Sampler        string  `json:"sampler"`
	Scheduler      string  `json:"scheduler"`
	ClipSkip       int     `json:"clipSkip" validate:"gte=0,lte=12"`
	BatchSize      int     `json:"batchSize" validate:"gte=0,lte=8"`

	// Model picks a catalog entry by key or checkpoint filename. Flags is
	// free text scanned for selection flags (--hq, --fast, --model=...)
	// and wins over Model when both are set.
	Model string `json:"model"`
	Flags string `json:"flags"`

	Workflow   *WorkflowSelection     `json:"workflow"`
	Deployment *DeploymentPreferences `json:"deployment"`

	// DisableSynthesize fails the request instead of falling back to the
	// canonical text-to-image graph when no stored workflow matches.
	DisableSynthesize bool `json:"disableSynthesize"`
}

// WorkflowSelection narrows how the workflow graph is obtained.
type WorkflowSelection struct {
	Method       string `json:"method" validate:"omitempty,oneof=auto id history name file"`
	HistoryID    string `json:"historyId"`
	TemplateName string `json:"templateName"`
	Type         string `json:"type" validate:"omitempty,oneof=flux pony turbo sdxl sd15"`
	PreferRecent bool   `json:"preferRecent"`
	MinNodes     int    `json:"minNodes" validate:"gte=0"`
	MaxNodes     int    `json:"maxNodes" validate:"gte=0"`
}

// DeploymentPreferences narrow which backend may serve the request.
type DeploymentPreferences struct {
	RequireRealtime bool   `json:"requireRealtime"`
	RequirePrivacy  bool   `json:"requirePrivacy"`
	FreeOnly        bool   `json:"freeOnly"`
	PreferredType   string `json:"preferredType" validate:"omitempty,oneof=local remote serverless"`
}
