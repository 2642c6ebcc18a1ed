package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/api/models"
)

func newTestSelector(t *testing.T, templates map[string]models.Graph) *SelectorService {
	t.Helper()
	engine := newTestEngine(t, templates)
	history := NewHistoryService(engine, 64, zerolog.Nop())
	return NewSelectorService(history, engine, zerolog.Nop())
}

// ============ Explicit Method Tests ============

func TestSelector_ByHistoryID(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 1, oddIDGraph(), true, 1)

	selector := newTestSelector(t, nil)
	selection, err := selector.Select(context.Background(), backend, models.SelectionOptions{
		Method:    models.MethodHistoryID,
		HistoryID: "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceHistoryID, selection.Source)
	assert.Equal(t, "p1", selection.Origin)
	assert.True(t, selection.Metadata.Complete())
}

func TestSelector_ByHistoryID_RequiresID(t *testing.T) {
	selector := newTestSelector(t, nil)

	_, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method: models.MethodHistoryID,
	})
	assert.ErrorContains(t, err, "requires a history id")
}

func TestSelector_ByTemplateName(t *testing.T) {
	selector := newTestSelector(t, map[string]models.Graph{"txt2img-sd15": oddIDGraph()})

	selection, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method:       models.MethodTemplateName,
		TemplateName: "txt2img-sd15",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceFileName, selection.Source)
	assert.Equal(t, "txt2img-sd15", selection.Origin)
}

func TestSelector_ByTemplateName_Missing(t *testing.T) {
	selector := newTestSelector(t, map[string]models.Graph{"txt2img-sd15": oddIDGraph()})

	_, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method:       models.MethodTemplateName,
		TemplateName: "ghost",
	})
	assert.ErrorIs(t, err, models.ErrNoTemplatesAvailable)
}

func TestSelector_UnknownMethod(t *testing.T) {
	selector := newTestSelector(t, nil)

	_, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method: models.SelectionMethod("telepathy"),
	})
	assert.ErrorContains(t, err, `unknown selection method "telepathy"`)
}

// ============ Template Matching Tests ============

func TestSelector_FromTemplates_NameMatchBeatsMetadata(t *testing.T) {
	// "sdxl-base" matches the requested type by name even though its graph
	// still declares an SD 1.5 checkpoint.
	selector := newTestSelector(t, map[string]models.Graph{
		"sdxl-base":    oddIDGraph(),
		"txt2img-sd15": oddIDGraph(),
	})

	selection, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method:   models.MethodTemplate,
		Criteria: models.DiscoveryCriteria{Type: models.WorkflowTypeSDXL},
	})
	require.NoError(t, err)
	assert.Equal(t, "sdxl-base", selection.Origin)
	assert.Equal(t, models.SourceFileAuto, selection.Source)
}

func TestSelector_FromTemplates_MetadataFallback(t *testing.T) {
	// No template name mentions sdxl, but "generic" loads an SDXL
	// checkpoint, so its declared model decides.
	selector := newTestSelector(t, map[string]models.Graph{
		"generic":      sdxlGraph(),
		"txt2img-sd15": oddIDGraph(),
	})

	selection, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method:   models.MethodTemplate,
		Criteria: models.DiscoveryCriteria{Type: models.WorkflowTypeSDXL},
	})
	require.NoError(t, err)
	assert.Equal(t, "generic", selection.Origin)
}

func TestSelector_FromTemplates_FirstByNameWhenNothingMatches(t *testing.T) {
	selector := newTestSelector(t, map[string]models.Graph{
		"b-template": oddIDGraph(),
		"a-template": oddIDGraph(),
	})

	selection, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method:   models.MethodTemplate,
		Criteria: models.DiscoveryCriteria{Type: models.WorkflowTypeFlux},
	})
	require.NoError(t, err)
	assert.Equal(t, "a-template", selection.Origin)
}

// ============ Automatic Fallback Tests ============

func TestSelector_Auto_PrefersHistory(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 1, oddIDGraph(), true, 1)

	selector := newTestSelector(t, map[string]models.Graph{"txt2img-sd15": oddIDGraph()})
	selection, err := selector.Select(context.Background(), backend, models.SelectionOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.SourceHistoryAuto, selection.Source)
	assert.Equal(t, "p1", selection.Origin)
}

func TestSelector_Auto_FallsBackToTemplates(t *testing.T) {
	selector := newTestSelector(t, map[string]models.Graph{"txt2img-sd15": oddIDGraph()})

	selection, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{
		Method: models.MethodAuto,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceFileAuto, selection.Source,
		"the reported source names the tier that produced the graph, not the requested method")
	assert.Equal(t, "txt2img-sd15", selection.Origin)
}

func TestSelector_Auto_AllTiersEmpty(t *testing.T) {
	selector := newTestSelector(t, nil)

	_, err := selector.Select(context.Background(), newStubBackend(), models.SelectionOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "all selection strategies failed")
	assert.ErrorIs(t, err, models.ErrNoTemplatesAvailable)
}

func TestSelector_Auto_TypeFiltersHistory(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 1, oddIDGraph(), true, 1)

	selector := newTestSelector(t, map[string]models.Graph{"sdxl-base": sdxlGraph()})
	selection, err := selector.Select(context.Background(), backend, models.SelectionOptions{
		Criteria: models.DiscoveryCriteria{Type: models.WorkflowTypeSDXL},
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceFileAuto, selection.Source,
		"history of the wrong family is skipped in favor of a matching template")
	assert.Equal(t, "sdxl-base", selection.Origin)
}

// ============ Inventory Tests ============

func TestSelector_ListAvailable(t *testing.T) {
	backend := newStubBackend()
	backend.entries["p1"] = fakeEntry(t, 4, oddIDGraph(), true, 1)
	backend.entries["p2"] = fakeEntry(t, 6, sdxlGraph(), true, 1)

	selector := newTestSelector(t, map[string]models.Graph{"txt2img-sd15": oddIDGraph()})
	inventory := selector.ListAvailable(context.Background(), backend)

	require.Len(t, inventory.History, 2)
	assert.Equal(t, "p2", inventory.History[0].ID)
	require.Len(t, inventory.Templates, 1)
	assert.Equal(t, "txt2img-sd15", inventory.Templates[0].Name)
	assert.Equal(t, models.WorkflowTypeSD15, inventory.Templates[0].Type)
	assert.Equal(t, 30, inventory.Templates[0].Steps)
	assert.Empty(t, inventory.Problems)
}

func TestSelector_ListAvailable_HistoryFailureIsReported(t *testing.T) {
	backend := newStubBackend()
	backend.historyErr = assert.AnError

	selector := newTestSelector(t, map[string]models.Graph{"txt2img-sd15": oddIDGraph()})
	inventory := selector.ListAvailable(context.Background(), backend)

	assert.Empty(t, inventory.History)
	require.Len(t, inventory.Problems, 1)
	assert.Contains(t, inventory.Problems[0], "history:")
	assert.Len(t, inventory.Templates, 1, "a failing history source does not hide templates")
}
