package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"atelier/internal/api/models"
)

// selectionStrategy is one tier of the automatic fallback chain. The
// chain is an ordered list, so reordering tiers is a one-line change.
type selectionStrategy struct {
	name string
	run  func(ctx context.Context, src HistorySource, opts models.SelectionOptions) (*models.Selection, error)
}

// SelectorService is the single entry point for obtaining a workflow. It
// unifies replaying history entries, loading templates and automatic
// discovery behind one Select call, and reports where the graph came from.
type SelectorService struct {
	history    *HistoryService
	workflows  *WorkflowService
	strategies []selectionStrategy
	logger     zerolog.Logger
}

func NewSelectorService(history *HistoryService, workflows *WorkflowService, logger zerolog.Logger) *SelectorService {
	slf := &SelectorService{
		history:   history,
		workflows: workflows,
		logger:    logger,
	}
	slf.strategies = []selectionStrategy{
		{name: "history", run: slf.fromHistory},
		{name: "template", run: slf.fromTemplates},
	}
	return slf
}

// Select obtains a workflow by the requested method. MethodAuto walks the
// strategy chain in order and returns the first success; the returned
// Selection records which tier actually produced the graph.
func (slf *SelectorService) Select(ctx context.Context, src HistorySource, opts models.SelectionOptions) (*models.Selection, error) {
	switch opts.Method {
	case models.MethodHistoryID:
		return slf.byHistoryID(ctx, src, opts.HistoryID)
	case models.MethodHistory:
		return slf.fromHistory(ctx, src, opts)
	case models.MethodTemplateName:
		return slf.byTemplateName(opts.TemplateName)
	case models.MethodTemplate:
		return slf.fromTemplates(ctx, src, opts)
	case models.MethodAuto, "":
		return slf.auto(ctx, src, opts)
	default:
		return nil, fmt.Errorf("unknown selection method %q", opts.Method)
	}
}

func (slf *SelectorService) auto(ctx context.Context, src HistorySource, opts models.SelectionOptions) (*models.Selection, error) {
	var lastErr error
	for _, strategy := range slf.strategies {
		selection, err := strategy.run(ctx, src, opts)
		if err != nil {
			slf.logger.Info().
				Err(err).
				Str("strategy", strategy.name).
				Msg("Selection strategy failed, trying next")
			lastErr = err
			continue
		}
		return selection, nil
	}
	return nil, fmt.Errorf("all selection strategies failed: %w", lastErr)
}

func (slf *SelectorService) byHistoryID(ctx context.Context, src HistorySource, promptID string) (*models.Selection, error) {
	if promptID == "" {
		return nil, fmt.Errorf("selection by id requires a history id")
	}
	wf, err := slf.history.GetByID(ctx, src, promptID)
	if err != nil {
		return nil, err
	}
	return &models.Selection{
		Graph:    wf.Graph,
		Source:   models.SourceHistoryID,
		Origin:   wf.ID,
		Metadata: wf.Metadata,
	}, nil
}

func (slf *SelectorService) fromHistory(ctx context.Context, src HistorySource, opts models.SelectionOptions) (*models.Selection, error) {
	wf, err := slf.history.FindBest(ctx, src, opts.Criteria)
	if err != nil {
		return nil, err
	}
	return &models.Selection{
		Graph:    wf.Graph,
		Source:   models.SourceHistoryAuto,
		Origin:   wf.ID,
		Metadata: wf.Metadata,
	}, nil
}

func (slf *SelectorService) byTemplateName(name string) (*models.Selection, error) {
	if name == "" {
		return nil, fmt.Errorf("selection by name requires a template name")
	}
	graph, ok := slf.workflows.Templates().Get(name)
	if !ok {
		return nil, fmt.Errorf("template %q: %w", name, models.ErrNoTemplatesAvailable)
	}
	return &models.Selection{
		Graph:    graph,
		Source:   models.SourceFileName,
		Origin:   name,
		Metadata: slf.workflows.ExtractMetadata(graph),
	}, nil
}

// fromTemplates picks a stored template automatically: one whose name
// mentions the requested type, else one whose declared model classifies
// to it, else the first by name.
func (slf *SelectorService) fromTemplates(_ context.Context, _ HistorySource, opts models.SelectionOptions) (*models.Selection, error) {
	names := slf.workflows.Templates().Names()
	if len(names) == 0 {
		return nil, models.ErrNoTemplatesAvailable
	}

	chosen := ""
	if opts.Criteria.Type != "" {
		for _, name := range names {
			if strings.Contains(strings.ToLower(name), string(opts.Criteria.Type)) {
				chosen = name
				break
			}
		}
		if chosen == "" {
			for _, name := range names {
				graph, _ := slf.workflows.Templates().Get(name)
				meta := slf.workflows.ExtractMetadata(graph)
				if models.ClassifyWorkflowType(meta.Model) == opts.Criteria.Type {
					chosen = name
					break
				}
			}
		}
	}
	if chosen == "" {
		chosen = names[0]
	}

	graph, _ := slf.workflows.Templates().Get(chosen)
	return &models.Selection{
		Graph:    graph,
		Source:   models.SourceFileAuto,
		Origin:   chosen,
		Metadata: slf.workflows.ExtractMetadata(graph),
	}, nil
}

// ListAvailable inventories both selection sources concurrently. A failing
// source contributes a problem entry instead of failing the whole listing.
func (slf *SelectorService) ListAvailable(ctx context.Context, src HistorySource) *models.WorkflowInventory {
	inventory := &models.WorkflowInventory{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		workflows, err := slf.history.ScanHistory(ctx, src)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			inventory.Problems = append(inventory.Problems, fmt.Sprintf("history: %v", err))
			return
		}
		for _, wf := range workflows {
			inventory.History = append(inventory.History, models.HistorySummary{
				ID:          wf.ID,
				Type:        wf.Type,
				NodeCount:   wf.Metadata.NodeCount,
				QueueNumber: wf.QueueNumber,
			})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		templates := slf.workflows.Templates()
		summaries := make([]models.TemplateSummary, 0, templates.Len())
		for _, name := range templates.Names() {
			graph, _ := templates.Get(name)
			meta := slf.workflows.ExtractMetadata(graph)
			summaries = append(summaries, models.TemplateSummary{
				Name:      name,
				Type:      models.ClassifyWorkflowType(meta.Model),
				NodeCount: meta.NodeCount,
				Steps:     meta.Steps,
			})
		}
		mu.Lock()
		inventory.Templates = summaries
		mu.Unlock()
	}()

	wg.Wait()
	return inventory
}
