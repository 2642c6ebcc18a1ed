package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"atelier/internal/api/models"
	"atelier/internal/comfy"
)

// BackendClient is everything the generation pipeline needs from one
// deployment: probing, submission, history and output retrieval.
// comfy.Client implements it; tests use stubs.
type BackendClient interface {
	HistorySource
	ImageFetcher
	QueueStatus(ctx context.Context) (int, error)
	SubmitPrompt(ctx context.Context, graph models.Graph) (*comfy.PromptResponse, error)
	ClientID() string
}

// EventStreamer is the optional live-event side of a backend client.
// When the selected deployment supports websocket streaming and its
// client implements this, the pipeline reports fine-grained progress;
// otherwise it falls back to history polling alone.
type EventStreamer interface {
	Listen(ctx context.Context) (*comfy.Listener, error)
}

// ClientFactory builds a backend client for a deployment's base URL.
type ClientFactory func(baseURL string) BackendClient

// RecordStore persists generation audit rows.
type RecordStore interface {
	Create(record *models.GenerationRecord) error
	MarkRunning(id uint, promptID string, deployment models.DeploymentType) error
	MarkCompleted(id uint, outputs models.OutputURLs, durationMs int64) error
	MarkFailed(id uint, lastError string) error
}

// SettingsStore reads per-caller generation preferences.
type SettingsStore interface {
	Find(callerID uint) (*models.CallerSettings, error)
}

// GenerationOptions parameterize one generation end to end.
type GenerationOptions struct {
	Request  models.GenerationRequest
	CallerID uint

	// ModelKey picks a catalog model by handle; FlagText is free text
	// scanned for selection flags. Both empty means the caller's default
	// model, then the catalog default.
	ModelKey string
	FlagText string

	Deployment models.DeploymentPreferences
	Workflow   models.SelectionOptions

	// DisableSynthesize turns off the last fallback tier: when set, a
	// failed workflow selection fails the generation instead of
	// synthesizing a canonical graph.
	DisableSynthesize bool
}

// PreparedGeneration is a generation that passed every selection step and
// is ready to submit: the deployment is healthy, the graph parameterized
// and validated, the audit row created.
type PreparedGeneration struct {
	Record     *models.GenerationRecord
	Deployment models.Deployment
	Client     BackendClient
	Graph      models.Graph
	Selection  *models.Selection
	Request    models.GenerationRequest
	Seed       int64
}

// GenerationService drives a request through the whole pipeline: pick a
// deployment, resolve the model, obtain a workflow, parameterize it,
// submit it and shepherd the execution to its outputs.
type GenerationService struct {
	deployments *DeploymentService
	catalog     *CatalogService
	selector    *SelectorService
	workflows   *WorkflowService
	records     RecordStore
	settings    SettingsStore
	artifacts   *ArtifactService
	progress    ProgressSink
	notifier    *NotifierService
	clients     ClientFactory

	execTimeout  time.Duration
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewGenerationService(
	deployments *DeploymentService,
	catalog *CatalogService,
	selector *SelectorService,
	workflows *WorkflowService,
	records RecordStore,
	settings SettingsStore,
	artifacts *ArtifactService,
	progress ProgressSink,
	notifier *NotifierService,
	clients ClientFactory,
	logger zerolog.Logger,
) *GenerationService {
	if clients == nil {
		clients = func(baseURL string) BackendClient {
			return comfy.NewClient(baseURL)
		}
	}
	return &GenerationService{
		deployments:  deployments,
		catalog:      catalog,
		selector:     selector,
		workflows:    workflows,
		records:      records,
		settings:     settings,
		artifacts:    artifacts,
		progress:     progress,
		notifier:     notifier,
		clients:      clients,
		execTimeout:  5 * time.Minute,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}
}

// Generate runs the full pipeline synchronously and returns the finished
// record. Handlers that want to answer before the images exist call
// Prepare themselves and run Execute in the background.
func (slf *GenerationService) Generate(ctx context.Context, opts GenerationOptions) (*models.GenerationRecord, error) {
	prepared, err := slf.Prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	return slf.Execute(ctx, prepared)
}

// Prepare performs every selection step up to submission: deployment,
// model, workflow, parameter injection, validation, filename stamping,
// audit row. Nothing has been sent to a backend when it returns.
func (slf *GenerationService) Prepare(ctx context.Context, opts GenerationOptions) (*PreparedGeneration, error) {
	deployment, err := slf.deployments.SelectBest(ctx, opts.Deployment)
	if err != nil {
		return nil, err
	}
	client := slf.clients(deployment.BaseURL)

	req := slf.resolveRequest(opts)

	selection, err := slf.selectWorkflow(ctx, client, opts, req)
	if err != nil {
		return nil, err
	}

	var graph models.Graph
	var seed int64
	if selection.Source == models.SourceSynthesized {
		// Synthesis already wrote every parameter; re-reading the seed
		// from the sampler keeps the record accurate.
		graph = selection.Graph
		if _, sampler, ok := graph.FirstByRole(models.RoleSampler); ok {
			if v, ok := sampler.Inputs["seed"].Float(); ok {
				seed = int64(v)
			}
		}
	} else {
		graph, seed = slf.workflows.Inject(selection.Graph, req)
	}

	report := slf.workflows.Validate(graph)
	for _, warning := range report.Warnings {
		slf.logger.Warn().Str("origin", selection.Origin).Msg("Workflow warning: " + warning)
	}
	if !report.Valid {
		return nil, &models.GraphValidationError{Report: report}
	}

	graph = slf.workflows.StampUniqueFilenames(graph)

	record := &models.GenerationRecord{
		CallerID:       opts.CallerID,
		Status:         models.GenerationStatusQueued,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		ModelFilename:  req.ModelFilename,
		Steps:          req.Steps,
		Seed:           seed,
		DeploymentType: deployment.Type,
		WorkflowSource: selection.Source,
		WorkflowOrigin: selection.Origin,
	}
	if err := slf.records.Create(record); err != nil {
		return nil, fmt.Errorf("creating generation record: %w", err)
	}

	slf.logger.Info().
		Uint("recordId", record.ID).
		Str("deployment", string(deployment.Type)).
		Str("source", string(selection.Source)).
		Str("origin", selection.Origin).
		Int64("seed", seed).
		Msg("Generation prepared")

	return &PreparedGeneration{
		Record:     record,
		Deployment: deployment,
		Client:     client,
		Graph:      graph,
		Selection:  selection,
		Request:    req,
		Seed:       seed,
	}, nil
}

// Execute submits a prepared generation and follows it to completion:
// outputs are mirrored into the artifact store and the record closed out.
// Terminal failures are recorded, reported and returned.
func (slf *GenerationService) Execute(ctx context.Context, p *PreparedGeneration) (*models.GenerationRecord, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, slf.execTimeout)
	defer cancel()

	slf.publish(Progress{RecordID: p.Record.ID, Phase: PhaseQueued, Message: "submitting workflow"})

	resp, err := p.Client.SubmitPrompt(ctx, p.Graph)
	if err != nil {
		return p.Record, slf.fail(p.Record, err)
	}
	p.Record.PromptID = resp.PromptID
	p.Record.Status = models.GenerationStatusRunning
	if err := slf.records.MarkRunning(p.Record.ID, resp.PromptID, p.Deployment.Type); err != nil {
		slf.logger.Error().Err(err).Uint("recordId", p.Record.ID).Msg("Failed to mark generation running")
	}
	slf.publish(Progress{RecordID: p.Record.ID, PromptID: resp.PromptID, Phase: PhaseRunning})

	refs, err := slf.awaitOutputs(ctx, p)
	if err != nil {
		return p.Record, slf.fail(p.Record, err)
	}

	slf.publish(Progress{RecordID: p.Record.ID, PromptID: p.Record.PromptID, Phase: PhaseUploading, Max: len(refs)})

	keyPrefix := fmt.Sprintf("generations/%d", p.Record.ID)
	urls := slf.artifacts.Mirror(ctx, p.Client, refs, keyPrefix)

	duration := time.Since(start).Milliseconds()
	p.Record.Status = models.GenerationStatusCompleted
	p.Record.Outputs = urls
	p.Record.DurationMs = duration
	if err := slf.records.MarkCompleted(p.Record.ID, urls, duration); err != nil {
		slf.logger.Error().Err(err).Uint("recordId", p.Record.ID).Msg("Failed to mark generation completed")
	}
	slf.publish(Progress{RecordID: p.Record.ID, PromptID: p.Record.PromptID, Phase: PhaseCompleted, Value: len(urls), Max: len(urls)})

	slf.logger.Info().
		Uint("recordId", p.Record.ID).
		Int("outputs", len(urls)).
		Int64("durationMs", duration).
		Msg("Generation completed")
	return p.Record, nil
}

// resolveRequest layers defaults under the caller's request: stored
// caller settings first, then the resolved model's tuning values.
func (slf *GenerationService) resolveRequest(opts GenerationOptions) models.GenerationRequest {
	req := opts.Request

	if slf.settings != nil && opts.CallerID > 0 {
		settings, err := slf.settings.Find(opts.CallerID)
		if err != nil {
			slf.logger.Warn().Err(err).Uint("callerId", opts.CallerID).Msg("Failed to load caller settings")
		} else if settings != nil {
			if req.NegativePrompt == "" {
				req.NegativePrompt = settings.NegativePrompt
			}
			if req.Width == 0 {
				req.Width = settings.Width
			}
			if req.Height == 0 {
				req.Height = settings.Height
			}
			if req.Steps == 0 {
				req.Steps = settings.Steps
			}
			if opts.ModelKey == "" && req.ModelFilename == "" {
				opts.ModelKey = settings.DefaultModel
			}
		}
	}

	var desc models.ModelDescriptor
	switch {
	case opts.FlagText != "":
		desc, _ = slf.catalog.ResolveWithFlags(opts.FlagText)
	case opts.ModelKey != "":
		desc = slf.catalog.Resolve(opts.ModelKey)
	case req.ModelFilename != "":
		desc = slf.catalog.Resolve(req.ModelFilename)
	default:
		desc = slf.catalog.Default()
	}

	return req.ApplyModelDefaults(desc)
}

// selectWorkflow obtains a graph via the selector and, unless disabled,
// synthesizes the canonical text-to-image graph when every selection
// strategy came up empty.
func (slf *GenerationService) selectWorkflow(ctx context.Context, client BackendClient, opts GenerationOptions, req models.GenerationRequest) (*models.Selection, error) {
	selOpts := opts.Workflow
	if selOpts.Criteria.Type == "" {
		selOpts.Criteria.Type = models.ClassifyWorkflowType(req.ModelFilename)
	}

	selection, err := slf.selector.Select(ctx, client, selOpts)
	if err == nil {
		return selection, nil
	}

	method := selOpts.Method
	if method == "" {
		method = models.MethodAuto
	}
	if opts.DisableSynthesize || method != models.MethodAuto {
		return nil, err
	}

	slf.logger.Info().Err(err).Msg("No stored workflow available, synthesizing")
	graph := slf.workflows.Synthesize(req)
	return &models.Selection{
		Graph:    graph,
		Source:   models.SourceSynthesized,
		Origin:   "synthesized",
		Metadata: slf.workflows.ExtractMetadata(graph),
	}, nil
}

// awaitOutputs watches the backend until the prompt finishes. A websocket
// stream feeds progress updates when the deployment offers one; the
// history endpoint is polled either way and remains the source of truth
// for completion, so a dropped socket degrades reporting, never results.
func (slf *GenerationService) awaitOutputs(ctx context.Context, p *PreparedGeneration) ([]comfy.ImageRef, error) {
	var events <-chan comfy.Event
	if streamer, ok := p.Client.(EventStreamer); ok && p.Deployment.Capabilities.WebsocketStreaming {
		listener, err := streamer.Listen(ctx)
		if err != nil {
			slf.logger.Warn().Err(err).Str("deployment", string(p.Deployment.Type)).Msg("Event stream unavailable, polling only")
		} else {
			defer listener.Close()
			events = listener.Events()
		}
	}

	ticker := time.NewTicker(slf.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("generation %d timed out waiting for outputs: %w", p.Record.ID, ctx.Err())

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			slf.handleEvent(p, ev)

		case <-ticker.C:
			entry, err := p.Client.HistoryEntry(ctx, p.Record.PromptID)
			if err != nil {
				// The entry only appears once execution finishes.
				if errors.Is(err, models.ErrHistoryEntryNotFound) {
					continue
				}
				slf.logger.Warn().Err(err).Str("promptId", p.Record.PromptID).Msg("History poll failed")
				continue
			}
			refs := entry.ImageRefs()
			if entry.Status.Completed || len(refs) > 0 {
				return refs, nil
			}
		}
	}
}

// handleEvent forwards one websocket event as a progress update.
func (slf *GenerationService) handleEvent(p *PreparedGeneration, ev comfy.Event) {
	switch ev.Type {
	case comfy.EventProgress:
		var data comfy.ProgressData
		if err := ev.Decode(&data); err != nil || (data.PromptID != "" && data.PromptID != p.Record.PromptID) {
			return
		}
		slf.publish(Progress{
			RecordID: p.Record.ID,
			PromptID: p.Record.PromptID,
			Phase:    PhaseRunning,
			Value:    data.Value,
			Max:      data.Max,
			Node:     data.Node,
		})
	case comfy.EventExecuting:
		var data comfy.ExecutingData
		if err := ev.Decode(&data); err != nil || data.PromptID != p.Record.PromptID || data.Node == nil {
			return
		}
		slf.publish(Progress{
			RecordID: p.Record.ID,
			PromptID: p.Record.PromptID,
			Phase:    PhaseRunning,
			Node:     *data.Node,
		})
	case comfy.EventExecutionError:
		var data comfy.ExecutionErrorData
		if err := ev.Decode(&data); err != nil || data.PromptID != p.Record.PromptID {
			return
		}
		slf.publish(Progress{
			RecordID: p.Record.ID,
			PromptID: p.Record.PromptID,
			Phase:    PhaseRunning,
			Node:     data.NodeID,
			Message:  data.ExceptionMessage,
		})
	}
}

// fail closes out a generation as failed and alerts operators.
func (slf *GenerationService) fail(record *models.GenerationRecord, cause error) error {
	record.Status = models.GenerationStatusFailed
	record.LastError = cause.Error()
	if err := slf.records.MarkFailed(record.ID, cause.Error()); err != nil {
		slf.logger.Error().Err(err).Uint("recordId", record.ID).Msg("Failed to mark generation failed")
	}
	slf.publish(Progress{RecordID: record.ID, PromptID: record.PromptID, Phase: PhaseFailed, Message: cause.Error()})

	slf.logger.Error().Err(cause).Uint("recordId", record.ID).Msg("Generation failed")
	if slf.notifier != nil {
		slf.notifier.NotifyGenerationFailed(*record, cause)
	}
	return cause
}

func (slf *GenerationService) publish(p Progress) {
	if slf.progress != nil {
		slf.progress.Publish(p)
	}
}
