package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============ Workflow Type Classification Tests ============

func TestClassifyWorkflowType(t *testing.T) {
	assert.Equal(t, WorkflowTypeFlux, ClassifyWorkflowType("flux1-dev-fp8.safetensors"))
	assert.Equal(t, WorkflowTypeTurbo, ClassifyWorkflowType("sd_xl_turbo_1.0.safetensors"))
	assert.Equal(t, WorkflowTypeSDXL, ClassifyWorkflowType("sd_xl_base_1.0.safetensors"))
	assert.Equal(t, WorkflowTypeSD15, ClassifyWorkflowType("v1-5-pruned-emaonly.safetensors"))
	assert.Equal(t, WorkflowTypeSD15, ClassifyWorkflowType(""))
}

func TestClassifyWorkflowType_PonyBeatsXL(t *testing.T) {
	// Pony checkpoints are XL-based and usually carry both markers.
	assert.Equal(t, WorkflowTypePony, ClassifyWorkflowType("ponyDiffusionV6XL.safetensors"))
}

func TestClassifyWorkflowType_CaseInsensitive(t *testing.T) {
	assert.Equal(t, WorkflowTypeFlux, ClassifyWorkflowType("FLUX1-Schnell.safetensors"))
}

// ============ Request Default Tests ============

func TestGenerationRequest_ApplyModelDefaults(t *testing.T) {
	m := ModelDescriptor{
		Key:      "dreamshaper",
		Filename: "dreamshaper_8.safetensors",
		Defaults: SamplerDefaults{
			Steps:     30,
			CFG:       6.5,
			Sampler:   "dpmpp_2m",
			Scheduler: "karras",
			Width:     768,
			Height:    768,
			ClipSkip:  2,
		},
	}

	filled := GenerationRequest{Prompt: "a lighthouse"}.ApplyModelDefaults(m)
	assert.Equal(t, "dreamshaper_8.safetensors", filled.ModelFilename)
	assert.Equal(t, 30, filled.Steps)
	assert.Equal(t, 6.5, filled.CFG)
	assert.Equal(t, "dpmpp_2m", filled.Sampler)
	assert.Equal(t, "karras", filled.Scheduler)
	assert.Equal(t, 768, filled.Width)
	assert.Equal(t, 2, filled.ClipSkip)
}

func TestGenerationRequest_ApplyModelDefaults_RequestWins(t *testing.T) {
	m := ModelDescriptor{
		Filename: "dreamshaper_8.safetensors",
		Defaults: SamplerDefaults{Steps: 30, Sampler: "dpmpp_2m"},
	}

	req := GenerationRequest{
		Prompt:        "a lighthouse",
		ModelFilename: "mine.safetensors",
		Steps:         12,
	}

	filled := req.ApplyModelDefaults(m)
	assert.Equal(t, "mine.safetensors", filled.ModelFilename, "Explicit request values must win")
	assert.Equal(t, 12, filled.Steps)
	assert.Equal(t, "dpmpp_2m", filled.Sampler, "Unset fields inherit the model defaults")
}

// ============ Catalog File Tests ============

func TestLoadCatalogFile(t *testing.T) {
	content := `
deployments:
  - type: local
    name: workstation
    baseUrl: http://127.0.0.1:8188
    priority: 1
    capabilities:
      realtime: true
      websocketStreaming: true
      customWorkflows: true
      privacy: complete
      cost: free
      scalable: false
  - type: serverless
    name: cloud-burst
    baseUrl: https://comfy.example.com
    priority: 5
    capabilities:
      privacy: shared
      cost: paid
      scalable: true
models:
  - key: sd15
    filename: v1-5-pruned-emaonly.safetensors
    description: Baseline SD 1.5 checkpoint
    default: true
    defaults:
      steps: 20
      cfg: 7.0
  - key: sdxl
    filename: sd_xl_base_1.0.safetensors
    template: sdxl-base
    defaults:
      steps: 25
      width: 1024
      height: 1024
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cf, err := LoadCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, cf.Deployments, 2)
	require.Len(t, cf.Models, 2)

	local := cf.Deployments[0]
	assert.Equal(t, DeploymentLocal, local.Type)
	assert.Equal(t, "http://127.0.0.1:8188", local.BaseURL)
	assert.True(t, local.Capabilities.Realtime)
	assert.Equal(t, PrivacyComplete, local.Capabilities.Privacy)
	assert.Equal(t, CostFree, local.Capabilities.Cost)

	cloud := cf.Deployments[1]
	assert.True(t, cloud.Capabilities.Scalable)
	assert.Equal(t, CostPaid, cloud.Capabilities.Cost)

	assert.True(t, cf.Models[0].Default)
	assert.Equal(t, 1024, cf.Models[1].Defaults.Width)
}

func TestLoadCatalogFile_Missing(t *testing.T) {
	_, err := LoadCatalogFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
