package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"atelier/internal/api/models"
	"atelier/internal/comfy"
)

// HistorySource is the slice of the backend client history discovery
// reads from. The source is passed per call because it depends on which
// deployment was selected for the request.
type HistorySource interface {
	History(ctx context.Context, maxItems int) (map[string]comfy.HistoryEntry, error)
	HistoryEntry(ctx context.Context, promptID string) (*comfy.HistoryEntry, error)
}

// HistoryService recovers reusable workflows from a deployment's
// execution history: what ran before is proof it can run again.
type HistoryService struct {
	workflows *WorkflowService
	scanLimit int
	logger    zerolog.Logger
}

func NewHistoryService(workflows *WorkflowService, scanLimit int, logger zerolog.Logger) *HistoryService {
	if scanLimit <= 0 {
		scanLimit = 64
	}
	return &HistoryService{
		workflows: workflows,
		scanLimit: scanLimit,
		logger:    logger,
	}
}

// ScanHistory fetches recent executions and keeps the completed ones
// whose graph still carries a loader, a sampler and a decoder, classified
// by model family and newest first. Everything else is silently dropped;
// history is mined best-effort, not validated.
func (slf *HistoryService) ScanHistory(ctx context.Context, src HistorySource) ([]models.HistoryWorkflow, error) {
	entries, err := src.History(ctx, slf.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}

	workflows := make([]models.HistoryWorkflow, 0, len(entries))
	skipped := 0
	for id, entry := range entries {
		if !entry.Status.Completed {
			skipped++
			continue
		}
		graph, ok := entry.Graph()
		if !ok {
			skipped++
			continue
		}
		meta := slf.workflows.ExtractMetadata(graph)
		if !meta.Complete() {
			skipped++
			continue
		}
		workflows = append(workflows, models.HistoryWorkflow{
			ID:          id,
			Type:        models.ClassifyWorkflowType(meta.Model),
			QueueNumber: entry.QueueNumber(),
			OutputCount: len(entry.ImageRefs()),
			Graph:       graph,
			Metadata:    meta,
		})
	}
	if skipped > 0 {
		slf.logger.Debug().Int("skipped", skipped).Msg("Skipped history entries without usable graphs")
	}

	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].QueueNumber != workflows[j].QueueNumber {
			return workflows[i].QueueNumber > workflows[j].QueueNumber
		}
		return workflows[i].ID < workflows[j].ID
	})
	return workflows, nil
}

// FindBest scans history and returns the top workflow matching the
// criteria. Matches are ranked by node count as a complexity proxy,
// unless the criteria prefer recency.
func (slf *HistoryService) FindBest(ctx context.Context, src HistorySource, criteria models.DiscoveryCriteria) (*models.HistoryWorkflow, error) {
	all, err := slf.ScanHistory(ctx, src)
	if err != nil {
		return nil, err
	}

	var matches []models.HistoryWorkflow
	for _, wf := range all {
		if criteria.Type != "" && wf.Type != criteria.Type {
			continue
		}
		if criteria.MinNodes > 0 && wf.Metadata.NodeCount < criteria.MinNodes {
			continue
		}
		if criteria.MaxNodes > 0 && wf.Metadata.NodeCount > criteria.MaxNodes {
			continue
		}
		matches = append(matches, wf)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("scanned %d history workflows: %w", len(all), models.ErrNoWorkflowFound)
	}

	if !criteria.PreferRecent {
		sort.Slice(matches, func(i, j int) bool {
			if matches[i].Metadata.NodeCount != matches[j].Metadata.NodeCount {
				return matches[i].Metadata.NodeCount > matches[j].Metadata.NodeCount
			}
			return matches[i].ID < matches[j].ID
		})
	}

	best := matches[0]
	slf.logger.Debug().
		Str("promptId", best.ID).
		Str("type", string(best.Type)).
		Int("nodes", best.Metadata.NodeCount).
		Msg("Selected history workflow")
	return &best, nil
}

// GetByID fetches one history entry and converts it to a workflow. An
// entry that exists but carries no graph counts as not found: there is
// nothing to replay.
func (slf *HistoryService) GetByID(ctx context.Context, src HistorySource, promptID string) (*models.HistoryWorkflow, error) {
	entry, err := src.HistoryEntry(ctx, promptID)
	if err != nil {
		return nil, err
	}
	graph, ok := entry.Graph()
	if !ok {
		return nil, fmt.Errorf("history entry %s has no usable graph: %w", promptID, models.ErrHistoryEntryNotFound)
	}
	meta := slf.workflows.ExtractMetadata(graph)
	return &models.HistoryWorkflow{
		ID:          promptID,
		Type:        models.ClassifyWorkflowType(meta.Model),
		QueueNumber: entry.QueueNumber(),
		OutputCount: len(entry.ImageRefs()),
		Graph:       graph,
		Metadata:    meta,
	}, nil
}

// UseByID replays a specific history entry with fresh parameters: the
// stored graph is fetched, cloned and re-injected with the overrides.
// Returns the parameterized graph and the effective seed.
func (slf *HistoryService) UseByID(ctx context.Context, src HistorySource, promptID string, overrides models.GenerationRequest) (models.Graph, int64, error) {
	wf, err := slf.GetByID(ctx, src, promptID)
	if err != nil {
		return nil, 0, err
	}
	graph, seed := slf.workflows.Inject(wf.Graph, overrides)
	return graph, seed, nil
}
