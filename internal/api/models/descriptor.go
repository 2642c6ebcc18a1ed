package models

// SamplerDefaults are the tuning values a model is known to work well with.
// Zero fields mean "no opinion" and inherit the engine defaults.
type SamplerDefaults struct {
	Steps     int     `yaml:"steps" json:"steps"`
	CFG       float64 `yaml:"cfg" json:"cfg"`
	Sampler   string  `yaml:"sampler" json:"sampler"`
	Scheduler string  `yaml:"scheduler" json:"scheduler"`
	Width     int     `yaml:"width" json:"width"`
	Height    int     `yaml:"height" json:"height"`
	ClipSkip  int     `yaml:"clipSkip" json:"clipSkip"`
}

// ModelDescriptor describes one checkpoint the catalog knows about. Key is
// the short handle callers use; Filename is what the backend loads.
type ModelDescriptor struct {
	Key         string          `yaml:"key" json:"key"`
	Filename    string          `yaml:"filename" json:"filename"`
	Template    string          `yaml:"template" json:"template"`
	Description string          `yaml:"description" json:"description"`
	Default     bool            `yaml:"default" json:"default"`
	Defaults    SamplerDefaults `yaml:"defaults" json:"defaults"`
}

// FallbackModel is what Resolve hands out when the catalog declares no
// models at all, so resolution stays total even on an empty catalog.
var FallbackModel = ModelDescriptor{
	Key:         "sd15",
	Filename:    "v1-5-pruned-emaonly.safetensors",
	Description: "Stock SD 1.5 checkpoint",
	Defaults: SamplerDefaults{
		Steps:     DefaultSteps,
		CFG:       DefaultCFG,
		Sampler:   DefaultSampler,
		Scheduler: DefaultScheduler,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
	},
}

// SelectionFlags are the recognized modifiers parsed out of free text.
// Unrecognized tokens are ignored rather than rejected.
type SelectionFlags struct {
	Quality  bool   `json:"quality"`
	Fast     bool   `json:"fast"`
	ModelKey string `json:"modelKey"`
}
