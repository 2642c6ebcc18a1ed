package mapper

import (
	"atelier/internal/api/handler/request"
	"atelier/internal/api/handler/response"
	"atelier/internal/api/models"
	"atelier/internal/api/service"
)

// GenerationMapper handles mapping between generation models and DTOs
type GenerationMapper interface {
	ToOptions(req request.CreateGeneration, callerID uint) service.GenerationOptions
	ToAccepted(p *service.PreparedGeneration) response.GenerationAccepted
	ToGenerationResponse(r models.GenerationRecord) response.Generation
	ToGenerationResponses(records []models.GenerationRecord) []response.Generation
}

// GenerationMapperImpl implements GenerationMapper
type GenerationMapperImpl struct{}

// NewGenerationMapper creates a new GenerationMapper instance
func NewGenerationMapper() GenerationMapper {
	return &GenerationMapperImpl{}
}

// ToOptions maps a create request to pipeline options
func (m *GenerationMapperImpl) ToOptions(req request.CreateGeneration, callerID uint) service.GenerationOptions {
	opts := service.GenerationOptions{
		Request: models.GenerationRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Steps:          req.Steps,
			CFG:            req.CFG,
			Width:          req.Width,
			Height:         req.Height,
			Seed:           req.Seed,
			Sampler:        req.Sampler,
			Scheduler:      req.Scheduler,
			ClipSkip:       req.ClipSkip,
			BatchSize:      req.BatchSize,
		},
		CallerID:          callerID,
		ModelKey:          req.Model,
		FlagText:          req.Flags,
		DisableSynthesize: req.DisableSynthesize,
	}

	if req.Workflow != nil {
		opts.Workflow = models.SelectionOptions{
			Method:       models.SelectionMethod(req.Workflow.Method),
			HistoryID:    req.Workflow.HistoryID,
			TemplateName: req.Workflow.TemplateName,
			Criteria: models.DiscoveryCriteria{
				Type:         models.WorkflowType(req.Workflow.Type),
				PreferRecent: req.Workflow.PreferRecent,
				MinNodes:     req.Workflow.MinNodes,
				MaxNodes:     req.Workflow.MaxNodes,
			},
		}
	}
	if req.Deployment != nil {
		opts.Deployment = models.DeploymentPreferences{
			RequireRealtime: req.Deployment.RequireRealtime,
			RequirePrivacy:  req.Deployment.RequirePrivacy,
			FreeOnly:        req.Deployment.FreeOnly,
			PreferredType:   models.DeploymentType(req.Deployment.PreferredType),
		}
	}
	return opts
}

// ToAccepted maps a prepared generation to the 202 acknowledgment
func (m *GenerationMapperImpl) ToAccepted(p *service.PreparedGeneration) response.GenerationAccepted {
	return response.GenerationAccepted{
		ID:             p.Record.ID,
		Status:         p.Record.Status,
		Seed:           p.Seed,
		DeploymentType: p.Deployment.Type,
		WorkflowSource: p.Selection.Source,
		WorkflowOrigin: p.Selection.Origin,
	}
}

// ToGenerationResponse maps a generation record to a response
func (m *GenerationMapperImpl) ToGenerationResponse(r models.GenerationRecord) response.Generation {
	return response.Generation{
		ID:             r.ID,
		Status:         r.Status,
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		ModelFilename:  r.ModelFilename,
		Steps:          r.Steps,
		Seed:           r.Seed,
		DeploymentType: r.DeploymentType,
		WorkflowSource: r.WorkflowSource,
		WorkflowOrigin: r.WorkflowOrigin,
		PromptID:       r.PromptID,
		Outputs:        r.Outputs,
		DurationMs:     r.DurationMs,
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ToGenerationResponses maps a slice of generation records to responses
func (m *GenerationMapperImpl) ToGenerationResponses(records []models.GenerationRecord) []response.Generation {
	result := make([]response.Generation, len(records))
	for i, r := range records {
		result[i] = m.ToGenerationResponse(r)
	}
	return result
}
