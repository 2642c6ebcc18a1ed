package models

// CallerSettings are per-caller generation preferences, applied before
// model defaults when a request leaves fields unset.
type CallerSettings struct {
	DefaultModel   string `json:"defaultModel"`
	NegativePrompt string `json:"negativePrompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
}
