// Package comfy speaks the ComfyUI HTTP and websocket API: queue probing,
// prompt submission, history retrieval and execution event streaming.
package comfy

import (
	"encoding/json"
	"sort"

	"atelier/internal/api/models"
)

// QueueInfo is the response of GET /prompt.
type QueueInfo struct {
	ExecInfo struct {
		QueueRemaining int `json:"queue_remaining"`
	} `json:"exec_info"`
}

// promptRequest is the body of POST /prompt.
type promptRequest struct {
	Prompt   models.Graph `json:"prompt"`
	ClientID string       `json:"client_id,omitempty"`
}

// PromptResponse is the backend's answer to a submission. NodeErrors is
// populated when the graph was rejected during validation.
type PromptResponse struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]json.RawMessage `json:"node_errors"`
}

// ImageRef locates one produced image on the backend.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the per-node output block of a history entry.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// HistoryStatus is the execution status block of a history entry.
type HistoryStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// HistoryEntry is one executed prompt as stored by the backend. Prompt is
// the positional array [queueNumber, promptId, graph, extraData, ...].
type HistoryEntry struct {
	Prompt  []json.RawMessage     `json:"prompt"`
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  HistoryStatus         `json:"status"`
}

// Graph extracts the workflow graph from the positional prompt array.
func (e HistoryEntry) Graph() (models.Graph, bool) {
	if len(e.Prompt) < 3 {
		return nil, false
	}
	var g models.Graph
	if err := json.Unmarshal(e.Prompt[2], &g); err != nil || len(g) == 0 {
		return nil, false
	}
	return g, true
}

// QueueNumber extracts the monotonically increasing execution counter,
// which orders history entries by recency.
func (e HistoryEntry) QueueNumber() int {
	if len(e.Prompt) < 1 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(e.Prompt[0], &n); err != nil {
		return 0
	}
	return int(n)
}

// ImageRefs flattens every output image across all nodes, in node id order.
func (e HistoryEntry) ImageRefs() []ImageRef {
	var refs []ImageRef
	for _, id := range sortedKeys(e.Outputs) {
		refs = append(refs, e.Outputs[id].Images...)
	}
	return refs
}

func sortedKeys(m map[string]NodeOutput) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
