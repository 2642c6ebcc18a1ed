package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"atelier/internal/api/models"
)

// Client talks to one ComfyUI deployment over HTTP. It is safe for
// concurrent use; each client carries its own backend client id so
// websocket events can be correlated with submissions.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
}

// NewClient builds a client for the given base URL, e.g.
// "http://127.0.0.1:8188".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: uuid.New().String(),
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// BaseURL returns the deployment address this client targets.
func (slf *Client) BaseURL() string {
	return slf.baseURL
}

// ClientID returns the id submitted with prompts and used on the
// websocket, so progress events can be attributed to this client.
func (slf *Client) ClientID() string {
	return slf.clientID
}

// QueueStatus probes GET /prompt and returns the pending queue depth.
// It doubles as the health check: an unreachable deployment errors here.
func (slf *Client) QueueStatus(ctx context.Context) (int, error) {
	var info QueueInfo
	if err := slf.getJSON(ctx, "/prompt", &info); err != nil {
		return 0, err
	}
	return info.ExecInfo.QueueRemaining, nil
}

// SubmitPrompt posts the graph for execution and returns the prompt id.
// Backend-side validation failures come back as a SubmissionError carrying
// the per-node errors.
func (slf *Client) SubmitPrompt(ctx context.Context, graph models.Graph) (*PromptResponse, error) {
	body, err := json.Marshal(promptRequest{Prompt: graph, ClientID: slf.clientID})
	if err != nil {
		return nil, fmt.Errorf("encoding prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slf.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := slf.http.Do(req)
	if err != nil {
		return nil, &models.SubmissionError{Deployment: slf.baseURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.SubmissionError{Deployment: slf.baseURL, Err: err}
	}

	var pr PromptResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, &models.SubmissionError{
			Deployment: slf.baseURL,
			Err:        fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err),
		}
	}

	if resp.StatusCode != http.StatusOK || len(pr.NodeErrors) > 0 {
		nodeErrs := make(map[string]string, len(pr.NodeErrors))
		for id, raw := range pr.NodeErrors {
			nodeErrs[id] = string(raw)
		}
		return nil, &models.SubmissionError{
			Deployment: slf.baseURL,
			NodeErrors: nodeErrs,
			Err:        fmt.Errorf("backend returned status %d", resp.StatusCode),
		}
	}
	return &pr, nil
}

// History fetches up to maxItems executed prompts, most properties intact.
func (slf *Client) History(ctx context.Context, maxItems int) (map[string]HistoryEntry, error) {
	path := "/history"
	if maxItems > 0 {
		path = fmt.Sprintf("/history?max_items=%d", maxItems)
	}
	var entries map[string]HistoryEntry
	if err := slf.getJSON(ctx, path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// HistoryEntry fetches a single executed prompt by id.
func (slf *Client) HistoryEntry(ctx context.Context, promptID string) (*HistoryEntry, error) {
	var entries map[string]HistoryEntry
	if err := slf.getJSON(ctx, "/history/"+url.PathEscape(promptID), &entries); err != nil {
		return nil, err
	}
	entry, ok := entries[promptID]
	if !ok {
		return nil, fmt.Errorf("prompt %s: %w", promptID, models.ErrHistoryEntryNotFound)
	}
	return &entry, nil
}

// ViewURL builds the download address for one produced image.
func (slf *Client) ViewURL(ref ImageRef) string {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	if ref.Subfolder != "" {
		q.Set("subfolder", ref.Subfolder)
	}
	q.Set("type", ref.Type)
	return slf.baseURL + "/view?" + q.Encode()
}

// FetchImage downloads one produced image.
func (slf *Client) FetchImage(ctx context.Context, ref ImageRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, slf.ViewURL(ref), nil)
	if err != nil {
		return nil, err
	}
	resp, err := slf.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching image %s: status %d", ref.Filename, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (slf *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, slf.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := slf.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
