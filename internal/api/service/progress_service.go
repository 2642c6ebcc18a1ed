package service

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"atelier/internal/api/models"
)

// GenerationPhase is the coarse lifecycle stage carried by every progress
// update, alongside fine-grained sampler step counts.
type GenerationPhase string

const (
	PhaseQueued    GenerationPhase = "queued"
	PhaseRunning   GenerationPhase = "running"
	PhaseUploading GenerationPhase = "uploading"
	PhaseCompleted GenerationPhase = "completed"
	PhaseFailed    GenerationPhase = "failed"
)

// Progress is one generation progress update.
type Progress struct {
	RecordID uint            `json:"recordId"`
	PromptID string          `json:"promptId"`
	Phase    GenerationPhase `json:"phase"`
	Value    int             `json:"value"`
	Max      int             `json:"max"`
	Node     string          `json:"node"`
	Message  string          `json:"message"`
}

// ProgressSink receives progress updates for broadcast to watchers.
type ProgressSink interface {
	Publish(p Progress)
}

// StatusSink receives deployment health snapshots for broadcast.
type StatusSink interface {
	PublishDeploymentStatus(statuses []models.DeploymentStatus)
}

// NatsProgressSink publishes progress on a per-generation NATS subject the
// realtime gateway fans out to websocket clients. Best-effort: when the
// connection cannot be established the sink degrades to a no-op, because
// progress reporting must never fail a generation.
type NatsProgressSink struct {
	conn     *nats.Conn
	tenantID string
	noop     bool
	logger   zerolog.Logger
}

func NewNatsProgressSink(natsURL, tenantID string, logger zerolog.Logger) *NatsProgressSink {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		logger.Warn().Err(err).Str("url", natsURL).Msg("NATS connection failed, progress reporting disabled")
		return &NatsProgressSink{noop: true, tenantID: tenantID, logger: logger}
	}
	logger.Info().Str("url", natsURL).Msg("NATS connected for progress reporting")
	return &NatsProgressSink{conn: nc, tenantID: tenantID, logger: logger}
}

// Publish sends one update. Errors are logged and swallowed.
func (slf *NatsProgressSink) Publish(p Progress) {
	if slf.noop {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to marshal progress update")
		return
	}
	subject := fmt.Sprintf("tenant.%s.generation.%d.progress", slf.tenantID, p.RecordID)
	if err := slf.conn.Publish(subject, data); err != nil {
		slf.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish progress update")
	}
}

// PublishDeploymentStatus broadcasts a health snapshot on the tenant's
// deployment status subject.
func (slf *NatsProgressSink) PublishDeploymentStatus(statuses []models.DeploymentStatus) {
	if slf.noop {
		return
	}
	data, err := json.Marshal(statuses)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to marshal deployment statuses")
		return
	}
	subject := fmt.Sprintf("tenant.%s.deployments.status", slf.tenantID)
	if err := slf.conn.Publish(subject, data); err != nil {
		slf.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish deployment statuses")
	}
}

// Close drains and closes the NATS connection.
func (slf *NatsProgressSink) Close() {
	if slf.noop || slf.conn == nil {
		return
	}
	if err := slf.conn.Drain(); err != nil {
		slf.logger.Warn().Err(err).Msg("NATS drain error")
	}
}
