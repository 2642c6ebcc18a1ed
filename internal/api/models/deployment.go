package models

// DeploymentType identifies a class of backend deployment. Exactly one
// deployment per type is registered.
type DeploymentType string

const (
	DeploymentLocal      DeploymentType = "local"
	DeploymentRemote     DeploymentType = "remote"
	DeploymentServerless DeploymentType = "serverless"
)

// PrivacyLevel describes where caller data ends up when a deployment runs it.
type PrivacyLevel string

const (
	PrivacyComplete PrivacyLevel = "complete"
	PrivacyShared   PrivacyLevel = "shared"
)

// CostTier describes whether running on a deployment incurs spend.
type CostTier string

const (
	CostFree CostTier = "free"
	CostPaid CostTier = "paid"
)

// Capabilities are the static properties a deployment advertises. They are
// fixed at registration; only health is probed at runtime.
type Capabilities struct {
	Realtime           bool         `yaml:"realtime" json:"realtime"`
	WebsocketStreaming bool         `yaml:"websocketStreaming" json:"websocketStreaming"`
	CustomWorkflows    bool         `yaml:"customWorkflows" json:"customWorkflows"`
	Privacy            PrivacyLevel `yaml:"privacy" json:"privacy"`
	Cost               CostTier     `yaml:"cost" json:"cost"`
	Scalable           bool         `yaml:"scalable" json:"scalable"`
}

// Deployment is one registered backend instance. Lower Priority wins when
// several healthy deployments satisfy a request.
type Deployment struct {
	Type         DeploymentType `yaml:"type" json:"type"`
	Name         string         `yaml:"name" json:"name"`
	BaseURL      string         `yaml:"baseUrl" json:"baseUrl"`
	Priority     int            `yaml:"priority" json:"priority"`
	Capabilities Capabilities   `yaml:"capabilities" json:"capabilities"`
}

// DeploymentPreferences constrain deployment selection. Zero value means
// "any healthy deployment, lowest priority first".
type DeploymentPreferences struct {
	// Hard filters: a deployment lacking these is never selected.
	RequireRealtime bool
	RequirePrivacy  bool
	FreeOnly        bool

	// Soft preference: pick this type when it is healthy, otherwise fall
	// back to priority order.
	PreferredType DeploymentType
}

// DeploymentStatus is one row of the registry health snapshot.
type DeploymentStatus struct {
	Type         DeploymentType `json:"type"`
	Name         string         `json:"name"`
	Healthy      bool           `json:"healthy"`
	QueueDepth   int            `json:"queueDepth"`
	Priority     int            `json:"priority"`
	Capabilities Capabilities   `json:"capabilities"`
}
