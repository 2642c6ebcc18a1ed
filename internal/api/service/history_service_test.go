package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/api/models"
	"atelier/internal/comfy"
)

// stubBackend fakes one deployment's API surface in memory. It satisfies
// BackendClient, so the same stub serves history, selector and pipeline
// tests.
type stubBackend struct {
	mu         sync.Mutex
	queueDepth int
	queueErr   error
	entries    map[string]comfy.HistoryEntry
	historyErr error
	submitID   string
	submitErr  error
	submitted  []models.Graph
	fetchErr   error
}

func newStubBackend() *stubBackend {
	return &stubBackend{entries: make(map[string]comfy.HistoryEntry)}
}

func (s *stubBackend) QueueStatus(ctx context.Context) (int, error) {
	return s.queueDepth, s.queueErr
}

func (s *stubBackend) History(ctx context.Context, maxItems int) (map[string]comfy.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	out := make(map[string]comfy.HistoryEntry, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry
	}
	return out, nil
}

func (s *stubBackend) HistoryEntry(ctx context.Context, promptID string) (*comfy.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[promptID]
	if !ok {
		return nil, fmt.Errorf("prompt %s: %w", promptID, models.ErrHistoryEntryNotFound)
	}
	return &entry, nil
}

func (s *stubBackend) SubmitPrompt(ctx context.Context, graph models.Graph) (*comfy.PromptResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, graph)
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	id := s.submitID
	if id == "" {
		id = "stub-prompt"
	}
	return &comfy.PromptResponse{PromptID: id, Number: len(s.submitted)}, nil
}

func (s *stubBackend) FetchImage(ctx context.Context, ref comfy.ImageRef) ([]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return []byte("png-bytes"), nil
}

func (s *stubBackend) ViewURL(ref comfy.ImageRef) string {
	return "http://stub:8188/view?filename=" + ref.Filename
}

func (s *stubBackend) ClientID() string { return "stub-client" }

// setEntry stores a history entry under a prompt id, safe to call while a
// poll loop is reading.
func (s *stubBackend) setEntry(promptID string, entry comfy.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[promptID] = entry
}

// fakeEntry builds a backend history entry around a graph. A nil graph
// produces the degenerate entry shape the backend emits for purged prompts.
func fakeEntry(t *testing.T, queueNum int, graph models.Graph, completed bool, images int) comfy.HistoryEntry {
	t.Helper()

	num, err := json.Marshal(queueNum)
	require.NoError(t, err)
	graphRaw := json.RawMessage(`{}`)
	if graph != nil {
		graphRaw, err = json.Marshal(graph)
		require.NoError(t, err)
	}

	entry := comfy.HistoryEntry{
		Prompt: []json.RawMessage{num, json.RawMessage(`"id"`), graphRaw, json.RawMessage(`{}`)},
		Status: comfy.HistoryStatus{Completed: completed},
	}
	if completed {
		entry.Status.StatusStr = "success"
	}
	if images > 0 {
		refs := make([]comfy.ImageRef, 0, images)
		for i := 0; i < images; i++ {
			refs = append(refs, comfy.ImageRef{Filename: fmt.Sprintf("out_%05d_.png", i), Type: "output"})
		}
		entry.Outputs = map[string]comfy.NodeOutput{"save_z": {Images: refs}}
	}
	return entry
}

// sdxlGraph is oddIDGraph with an SDXL checkpoint, so it classifies to a
// different model family.
func sdxlGraph() models.Graph {
	g := oddIDGraph()
	node := g["loader_77"]
	node.SetLiteral("ckpt_name", "sd_xl_base_1.0.safetensors")
	g["loader_77"] = node
	return g
}

func newTestHistory(t *testing.T) *HistoryService {
	t.Helper()
	return NewHistoryService(newTestEngine(t, nil), 64, zerolog.Nop())
}

// ============ Scan Tests ============

func TestHistory_Scan_KeepsCompleteCompletedEntries(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 5, oddIDGraph(), true, 1)
	backend.entries["p2"] = fakeEntry(t, 9, sdxlGraph(), true, 2)

	incomplete := oddIDGraph()
	delete(incomplete, "dec_9")
	backend.entries["p3"] = fakeEntry(t, 7, incomplete, true, 1)
	backend.entries["p4"] = fakeEntry(t, 8, oddIDGraph(), false, 0)
	backend.entries["p5"] = fakeEntry(t, 6, nil, true, 0)

	svc := newTestHistory(t)
	workflows, err := svc.ScanHistory(context.Background(), backend)
	require.NoError(t, err)
	require.Len(t, workflows, 2, "incomplete, unfinished and graphless entries are dropped")

	assert.Equal(t, "p2", workflows[0].ID, "newest queue number first")
	assert.Equal(t, models.WorkflowTypeSDXL, workflows[0].Type)
	assert.Equal(t, 2, workflows[0].OutputCount)

	assert.Equal(t, "p1", workflows[1].ID)
	assert.Equal(t, models.WorkflowTypeSD15, workflows[1].Type)
}

func TestHistory_Scan_DropsEntryWithoutDecoder(t *testing.T) {
	// A graph that loads and samples but never decodes is useless for
	// replay even though its loader is fine.
	graph := oddIDGraph()
	delete(graph, "dec_9")
	delete(graph, "save_z")

	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 1, graph, true, 0)

	svc := newTestHistory(t)
	workflows, err := svc.ScanHistory(context.Background(), backend)
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestHistory_Scan_SourceError(t *testing.T) {
	backend := newStubBackend()
	backend.historyErr = errors.New("connection refused")

	svc := newTestHistory(t)
	_, err := svc.ScanHistory(context.Background(), backend)
	assert.ErrorContains(t, err, "fetching history")
}

// ============ FindBest Tests ============

func TestHistory_FindBest_FiltersByType(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 5, oddIDGraph(), true, 1)
	backend.entries["p2"] = fakeEntry(t, 9, sdxlGraph(), true, 1)

	svc := newTestHistory(t)
	wf, err := svc.FindBest(context.Background(), backend, models.DiscoveryCriteria{Type: models.WorkflowTypeSD15})
	require.NoError(t, err)
	assert.Equal(t, "p1", wf.ID)
}

func TestHistory_FindBest_ComplexityWinsByDefault(t *testing.T) {
	big := oddIDGraph()
	big["lora_1"] = models.Node{
		Class: "LoraLoader",
		Inputs: map[string]models.Input{
			"model": models.EdgeInput("loader_77", 0),
		},
	}

	backend := newStubBackend()
	backend.entries["small-new"] = fakeEntry(t, 20, oddIDGraph(), true, 1)
	backend.entries["big-old"] = fakeEntry(t, 10, big, true, 1)

	svc := newTestHistory(t)

	wf, err := svc.FindBest(context.Background(), backend, models.DiscoveryCriteria{})
	require.NoError(t, err)
	assert.Equal(t, "big-old", wf.ID, "without a recency preference the richer graph wins")

	wf, err = svc.FindBest(context.Background(), backend, models.DiscoveryCriteria{PreferRecent: true})
	require.NoError(t, err)
	assert.Equal(t, "small-new", wf.ID)
}

func TestHistory_FindBest_NodeBounds(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 1, oddIDGraph(), true, 1) // 7 nodes

	svc := newTestHistory(t)

	_, err := svc.FindBest(context.Background(), backend, models.DiscoveryCriteria{MinNodes: 10})
	assert.ErrorIs(t, err, models.ErrNoWorkflowFound)

	_, err = svc.FindBest(context.Background(), backend, models.DiscoveryCriteria{MaxNodes: 5})
	assert.ErrorIs(t, err, models.ErrNoWorkflowFound)

	wf, err := svc.FindBest(context.Background(), backend, models.DiscoveryCriteria{MinNodes: 5, MaxNodes: 10})
	require.NoError(t, err)
	assert.Equal(t, "p1", wf.ID)
}

func TestHistory_FindBest_EmptyHistory(t *testing.T) {
	svc := newTestHistory(t)

	_, err := svc.FindBest(context.Background(), newStubBackend(), models.DiscoveryCriteria{})
	assert.ErrorIs(t, err, models.ErrNoWorkflowFound)
}

// ============ Replay Tests ============

func TestHistory_GetByID(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 3, oddIDGraph(), true, 2)

	svc := newTestHistory(t)
	wf, err := svc.GetByID(context.Background(), backend, "p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", wf.ID)
	assert.Equal(t, 3, wf.QueueNumber)
	assert.Equal(t, 2, wf.OutputCount)
	assert.Equal(t, "old.safetensors", wf.Metadata.Model)
}

func TestHistory_GetByID_Missing(t *testing.T) {
	svc := newTestHistory(t)

	_, err := svc.GetByID(context.Background(), newStubBackend(), "ghost")
	assert.ErrorIs(t, err, models.ErrHistoryEntryNotFound)
}

func TestHistory_GetByID_GraphlessEntryCountsAsMissing(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 1, nil, true, 0)

	svc := newTestHistory(t)
	_, err := svc.GetByID(context.Background(), backend, "p1")
	assert.ErrorIs(t, err, models.ErrHistoryEntryNotFound)
}

func TestHistory_UseByID_ReinjectsOverrides(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 1, oddIDGraph(), true, 1)

	svc := newTestHistory(t)
	graph, seed, err := svc.UseByID(context.Background(), backend, "p1", models.GenerationRequest{
		Prompt: "replayed with a new prompt",
		Steps:  11,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, seed, int64(0))
	pos, _ := graph["enc_good"].Inputs["text"].String()
	assert.Equal(t, "replayed with a new prompt", pos)
	steps, _ := graph["samp_x"].Inputs["steps"].Int()
	assert.Equal(t, 11, steps)
	model, _ := graph["loader_77"].Inputs["ckpt_name"].String()
	assert.Equal(t, "old.safetensors", model, "fields absent from the overrides keep the stored values")
}
