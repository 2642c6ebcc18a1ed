package models

// Engine fallbacks used when neither the request nor the resolved model
// supplies a value. They mirror the backend's stock text-to-image template.
const (
	DefaultNegativePrompt = "text, watermark"
	DefaultSteps          = 20
	DefaultCFG            = 7.0
	DefaultWidth          = 512
	DefaultHeight         = 512
	DefaultSampler        = "euler"
	DefaultScheduler      = "normal"
	DefaultBatchSize      = 1

	// SeedRange bounds randomly drawn seeds.
	SeedRange = 1_000_000_000
)

// GenerationRequest carries everything needed to parameterize a workflow.
// Zero fields inherit model defaults, then the engine fallbacks above.
// A nil Seed means "draw a random one at injection time".
type GenerationRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negativePrompt"`
	ModelFilename  string  `json:"modelFilename"`
	Steps          int     `json:"steps"`
	CFG            float64 `json:"cfg"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           *int64  `json:"seed"`
	Sampler        string  `json:"sampler"`
	Scheduler      string  `json:"scheduler"`
	ClipSkip       int     `json:"clipSkip"`
	BatchSize      int     `json:"batchSize"`
	FilenamePrefix string  `json:"filenamePrefix"`
}

// ApplyModelDefaults fills zero request fields from a resolved descriptor.
// The request keeps precedence over the model, the model over the engine.
func (r GenerationRequest) ApplyModelDefaults(m ModelDescriptor) GenerationRequest {
	if r.ModelFilename == "" {
		r.ModelFilename = m.Filename
	}
	d := m.Defaults
	if r.Steps == 0 {
		r.Steps = d.Steps
	}
	if r.CFG == 0 {
		r.CFG = d.CFG
	}
	if r.Width == 0 {
		r.Width = d.Width
	}
	if r.Height == 0 {
		r.Height = d.Height
	}
	if r.Sampler == "" {
		r.Sampler = d.Sampler
	}
	if r.Scheduler == "" {
		r.Scheduler = d.Scheduler
	}
	if r.ClipSkip == 0 {
		r.ClipSkip = d.ClipSkip
	}
	return r
}
