package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSBridge subscribes to the tenant's subjects and pushes messages into
// the Hub.
type NATSBridge struct {
	conn     *nats.Conn
	hub      *Hub
	tenantID string
}

func NewNATSBridge(natsURL, tenantID string, hub *Hub) (*NATSBridge, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSBridge{conn: nc, hub: hub, tenantID: tenantID}, nil
}

// Subscribe listens for generation progress on
// tenant.<tenantID>.generation.*.progress and health snapshots on
// tenant.<tenantID>.deployments.status.
func (b *NATSBridge) Subscribe() error {
	progress := fmt.Sprintf("tenant.%s.generation.*.progress", b.tenantID)
	if _, err := b.conn.Subscribe(progress, b.onProgress); err != nil {
		return fmt.Errorf("nats subscribe %q: %w", progress, err)
	}

	status := fmt.Sprintf("tenant.%s.deployments.status", b.tenantID)
	if _, err := b.conn.Subscribe(status, b.onStatus); err != nil {
		return fmt.Errorf("nats subscribe %q: %w", status, err)
	}

	log.Printf("NATS bridge subscribed to: %s, %s", progress, status)
	return nil
}

func (b *NATSBridge) onProgress(msg *nats.Msg) {
	generationID, err := parseGenerationID(msg.Subject)
	if err != nil {
		log.Printf("nats: bad subject %q: %v", msg.Subject, err)
		return
	}

	// Wrap the raw progress payload in the outgoing envelope
	envelope := outgoingMsg{
		Type:         "generation.progress",
		GenerationID: generationID,
		Payload:      json.RawMessage(msg.Data),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("nats: marshal envelope: %v", err)
		return
	}

	b.hub.broadcast <- broadcastMsg{generationID: generationID, payload: data}
}

func (b *NATSBridge) onStatus(msg *nats.Msg) {
	envelope := outgoingMsg{
		Type:    "deployments.status",
		Payload: json.RawMessage(msg.Data),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("nats: marshal envelope: %v", err)
		return
	}

	b.hub.broadcast <- broadcastMsg{status: true, payload: data}
}

// Close drains the NATS connection.
func (b *NATSBridge) Close() {
	if err := b.conn.Drain(); err != nil {
		log.Printf("nats drain: %v", err)
	}
}

// parseGenerationID extracts the id from "tenant.<tid>.generation.<id>.progress"
func parseGenerationID(subject string) (uint, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 5 {
		return 0, fmt.Errorf("expected 5 parts, got %d", len(parts))
	}
	id, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid generation id %q: %w", parts[3], err)
	}
	return uint(id), nil
}
