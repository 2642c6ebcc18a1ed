package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/api/models"
)

const historyEntryJSON = `{
  "prompt": [
    42,
    "abc-123",
    {
      "3": {"inputs": {"steps": 20, "model": ["4", 0]}, "class_type": "KSampler"},
      "4": {"inputs": {"ckpt_name": "v1-5-pruned-emaonly.safetensors"}, "class_type": "CheckpointLoaderSimple"}
    },
    {"client_id": "x"},
    ["9"]
  ],
  "outputs": {
    "9": {"images": [
      {"filename": "ComfyUI_00001_.png", "subfolder": "", "type": "output"},
      {"filename": "ComfyUI_00002_.png", "subfolder": "batch", "type": "output"}
    ]}
  },
  "status": {"status_str": "success", "completed": true}
}`

// ============ Queue Probe Tests ============

func TestClient_QueueStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/prompt", r.URL.Path)
		w.Write([]byte(`{"exec_info": {"queue_remaining": 3}}`))
	}))
	defer srv.Close()

	depth, err := NewClient(srv.URL).QueueStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestClient_QueueStatus_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).QueueStatus(context.Background())
	require.Error(t, err)
}

// ============ Submission Tests ============

func TestClient_SubmitPrompt(t *testing.T) {
	graph := models.Graph{
		"4": {Class: "CheckpointLoaderSimple", Inputs: map[string]models.Input{
			"ckpt_name": models.LiteralInput("base.safetensors"),
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/prompt", r.URL.Path)

		var body struct {
			Prompt   models.Graph `json:"prompt"`
			ClientID string       `json:"client_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.ClientID)
		assert.Equal(t, "CheckpointLoaderSimple", body.Prompt["4"].Class)

		w.Write([]byte(`{"prompt_id": "p-1", "number": 7, "node_errors": {}}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).SubmitPrompt(context.Background(), graph)
	require.NoError(t, err)
	assert.Equal(t, "p-1", resp.PromptID)
	assert.Equal(t, 7, resp.Number)
}

func TestClient_SubmitPrompt_NodeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"prompt_id": "", "node_errors": {"4": {"errors": [{"message": "ckpt not found"}]}}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).SubmitPrompt(context.Background(), models.Graph{})
	require.Error(t, err)

	var subErr *models.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Contains(t, subErr.NodeErrors, "4")
	assert.Contains(t, subErr.Error(), "1 node errors")
}

// ============ History Tests ============

func TestClient_HistoryEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/history/abc-123", r.URL.Path)
		w.Write([]byte(`{"abc-123": ` + historyEntryJSON + `}`))
	}))
	defer srv.Close()

	entry, err := NewClient(srv.URL).HistoryEntry(context.Background(), "abc-123")
	require.NoError(t, err)

	assert.Equal(t, 42, entry.QueueNumber())
	assert.True(t, entry.Status.Completed)

	graph, ok := entry.Graph()
	require.True(t, ok)
	require.Len(t, graph, 2)
	assert.Equal(t, "KSampler", graph["3"].Class)

	refs := entry.ImageRefs()
	require.Len(t, refs, 2)
	assert.Equal(t, "ComfyUI_00001_.png", refs[0].Filename)
}

func TestClient_HistoryEntry_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).HistoryEntry(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrHistoryEntryNotFound))
}

func TestClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/history", r.URL.Path)
		require.Equal(t, "64", r.URL.Query().Get("max_items"))
		w.Write([]byte(`{"abc-123": ` + historyEntryJSON + `}`))
	}))
	defer srv.Close()

	entries, err := NewClient(srv.URL).History(context.Background(), 64)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, ok := entries["abc-123"]
	assert.True(t, ok)
}

func TestHistoryEntry_Graph_Malformed(t *testing.T) {
	entry := HistoryEntry{Prompt: []json.RawMessage{[]byte(`1`)}}
	_, ok := entry.Graph()
	assert.False(t, ok)
	assert.Equal(t, 1, entry.QueueNumber())
}

// ============ View URL Tests ============

func TestClient_ViewURL(t *testing.T) {
	c := NewClient("http://comfy.local:8188/")

	u := c.ViewURL(ImageRef{Filename: "a b.png", Subfolder: "sub", Type: "output"})
	assert.Equal(t, "http://comfy.local:8188/view?filename=a+b.png&subfolder=sub&type=output", u)

	u = c.ViewURL(ImageRef{Filename: "x.png", Type: "output"})
	assert.NotContains(t, u, "subfolder")
}
