package comfy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// EventType discriminates the messages the backend pushes on its websocket.
type EventType string

const (
	EventStatus           EventType = "status"
	EventProgress         EventType = "progress"
	EventExecutionStart   EventType = "execution_start"
	EventExecuting        EventType = "executing"
	EventExecuted         EventType = "executed"
	EventExecutionCached  EventType = "execution_cached"
	EventExecutionSuccess EventType = "execution_success"
	EventExecutionError   EventType = "execution_error"
)

// Event is one websocket message, payload left raw until decoded.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into the matching Data struct.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ProgressData reports sampler progress for one node.
type ProgressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
	Node     string `json:"node"`
}

// ExecutingData announces the node currently running. A nil Node means the
// prompt finished.
type ExecutingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

// ExecutedData carries the outputs of a finished node.
type ExecutedData struct {
	Node     string     `json:"node"`
	PromptID string     `json:"prompt_id"`
	Output   NodeOutput `json:"output"`
}

// ExecutionErrorData describes a node failure during execution.
type ExecutionErrorData struct {
	PromptID         string `json:"prompt_id"`
	NodeID           string `json:"node_id"`
	NodeType         string `json:"node_type"`
	ExceptionMessage string `json:"exception_message"`
}

// StatusData mirrors the queue counter pushed after every state change.
type StatusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

// Listener is a live websocket subscription to one deployment's execution
// events. Events are delivered on a buffered channel; when the reader
// cannot keep up, messages are dropped rather than blocking the socket.
type Listener struct {
	conn   *websocket.Conn
	events chan Event
}

// Listen opens the event stream for this client's id. The stream ends when
// the context is canceled, Close is called or the peer goes away; the
// events channel is closed in every case.
func (slf *Client) Listen(ctx context.Context) (*Listener, error) {
	wsURL, err := slf.wsURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	l := &Listener{conn: conn, events: make(chan Event, 64)}
	go l.readLoop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return l, nil
}

// Events returns the stream of decoded events.
func (slf *Listener) Events() <-chan Event {
	return slf.events
}

// Close tears down the socket, which also closes the events channel.
func (slf *Listener) Close() error {
	return slf.conn.Close()
}

func (slf *Listener) readLoop() {
	defer close(slf.events)
	for {
		msgType, data, err := slf.conn.ReadMessage()
		if err != nil {
			return
		}
		// Binary frames carry preview images; only text frames are events.
		if msgType != websocket.TextMessage {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		select {
		case slf.events <- ev:
		default:
		}
	}
}

func (slf *Client) wsURL() (string, error) {
	u, err := url.Parse(slf.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = "clientId=" + slf.clientID
	return u.String(), nil
}
