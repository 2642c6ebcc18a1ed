package models

// Size is one output resolution read from a latent image node.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GraphMetadata summarizes a graph: tuning values read from its nodes plus
// structural capability flags. Derived, never stored.
type GraphMetadata struct {
	NodeCount     int      `json:"nodeCount"`
	HasLoader     bool     `json:"hasLoader"`
	HasSampler    bool     `json:"hasSampler"`
	HasDecoder    bool     `json:"hasDecoder"`
	HasControlNet bool     `json:"hasControlNet"`
	HasLora       bool     `json:"hasLora"`
	ClassTypes    []string `json:"classTypes"`
	Steps         int      `json:"steps"`
	CFG           float64  `json:"cfg"`
	Sampler       string   `json:"sampler"`
	Scheduler     string   `json:"scheduler"`
	Model         string   `json:"model"`
	Sizes         []Size   `json:"sizes"`
}

// Complete reports whether the graph carries the three roles every runnable
// workflow needs: a loader, a sampler and a decoder.
func (m GraphMetadata) Complete() bool {
	return m.HasLoader && m.HasSampler && m.HasDecoder
}

// ValidationReport is the outcome of a structural graph check. Errors mean
// the graph cannot run; warnings mean parameter injection will degrade.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
