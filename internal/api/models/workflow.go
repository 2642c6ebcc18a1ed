package models

import "strings"

// WorkflowType groups workflows by the model family they were built for.
// The family drives which templates and discovered graphs are compatible.
type WorkflowType string

const (
	WorkflowTypeFlux  WorkflowType = "flux"
	WorkflowTypePony  WorkflowType = "pony"
	WorkflowTypeTurbo WorkflowType = "turbo"
	WorkflowTypeSDXL  WorkflowType = "sdxl"
	WorkflowTypeSD15  WorkflowType = "sd15"
)

// typeFragments are checked in order against the lowercased model filename;
// the first hit wins. Pony precedes sdxl because pony checkpoints usually
// carry an "xl" suffix too.
var typeFragments = []struct {
	fragment string
	wtype    WorkflowType
}{
	{"flux", WorkflowTypeFlux},
	{"pony", WorkflowTypePony},
	{"turbo", WorkflowTypeTurbo},
	{"xl", WorkflowTypeSDXL},
}

// ClassifyWorkflowType maps a checkpoint filename to its model family.
// Unrecognized filenames default to sd15.
func ClassifyWorkflowType(modelFilename string) WorkflowType {
	lower := strings.ToLower(modelFilename)
	for _, tf := range typeFragments {
		if strings.Contains(lower, tf.fragment) {
			return tf.wtype
		}
	}
	return WorkflowTypeSD15
}

// HistoryWorkflow is one executed workflow recovered from a deployment's
// history, ready for reuse. QueueNumber orders entries by execution recency.
type HistoryWorkflow struct {
	ID          string        `json:"id"`
	Type        WorkflowType  `json:"type"`
	QueueNumber int           `json:"queueNumber"`
	OutputCount int           `json:"outputCount"`
	Graph       Graph         `json:"graph"`
	Metadata    GraphMetadata `json:"metadata"`
}

// DiscoveryCriteria filter history scanning. Zero fields do not filter.
type DiscoveryCriteria struct {
	Type         WorkflowType `json:"type"`
	PreferRecent bool         `json:"preferRecent"`
	MinNodes     int          `json:"minNodes"`
	MaxNodes     int          `json:"maxNodes"`
}

// SelectionMethod names one way of obtaining a workflow.
type SelectionMethod string

const (
	// MethodAuto tries history first, then templates.
	MethodAuto SelectionMethod = "auto"
	// MethodHistoryID replays an exact history entry.
	MethodHistoryID SelectionMethod = "id"
	// MethodHistory discovers the best matching history entry.
	MethodHistory SelectionMethod = "history"
	// MethodTemplateName loads a template by name.
	MethodTemplateName SelectionMethod = "name"
	// MethodTemplate picks the best matching template.
	MethodTemplate SelectionMethod = "file"
)

// SelectionSource records where a selected workflow actually came from,
// which can differ from the requested method when fallback kicked in.
type SelectionSource string

const (
	SourceHistoryID   SelectionSource = "history-id"
	SourceHistoryAuto SelectionSource = "history-auto"
	SourceFileName    SelectionSource = "file-name"
	SourceFileAuto    SelectionSource = "file-auto"
	SourceSynthesized SelectionSource = "synthesized"
)

// SelectionOptions parameterize workflow selection.
type SelectionOptions struct {
	Method       SelectionMethod   `json:"method"`
	HistoryID    string            `json:"historyId"`
	TemplateName string            `json:"templateName"`
	Criteria     DiscoveryCriteria `json:"criteria"`
}

// Selection is a chosen workflow plus how it was obtained. The graph is
// already parameterized and ready to submit.
type Selection struct {
	Graph    Graph           `json:"graph"`
	Source   SelectionSource `json:"source"`
	Origin   string          `json:"origin"`
	Metadata GraphMetadata   `json:"metadata"`
}

// WorkflowRequirements describe what a caller needs from a template.
type WorkflowRequirements struct {
	NeedsControlNet bool `json:"needsControlNet"`
	NeedsLora       bool `json:"needsLora"`
	PreferredSteps  int  `json:"preferredSteps"`
	MaxNodes        int  `json:"maxNodes"`
}

// WorkflowRecommendation is one scored template, best first.
type WorkflowRecommendation struct {
	Name     string        `json:"name"`
	Score    int           `json:"score"`
	Reasons  []string      `json:"reasons"`
	Metadata GraphMetadata `json:"metadata"`
}

// HistorySummary is the inventory row for one discovered history workflow.
type HistorySummary struct {
	ID          string       `json:"id"`
	Type        WorkflowType `json:"type"`
	NodeCount   int          `json:"nodeCount"`
	QueueNumber int          `json:"queueNumber"`
}

// TemplateSummary is the inventory row for one stored template.
type TemplateSummary struct {
	Name      string       `json:"name"`
	Type      WorkflowType `json:"type"`
	NodeCount int          `json:"nodeCount"`
	Steps     int          `json:"steps"`
}

// WorkflowInventory lists everything selectable right now. Either side may
// be empty when its source was unreachable; Problems carries those failures.
type WorkflowInventory struct {
	History   []HistorySummary  `json:"history"`
	Templates []TemplateSummary `json:"templates"`
	Problems  []string          `json:"problems,omitempty"`
}
