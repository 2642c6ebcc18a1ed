package request

// UpdateSettings replaces a caller's stored generation preferences.
type UpdateSettings struct {
	DefaultModel   string `json:"defaultModel"`
	NegativePrompt string `json:"negativePrompt"`
	Width          int    `json:"width" validate:"gte=0,lte=4096"`
	Height         int    `json:"height" validate:"gte=0,lte=4096"`
	Steps          int    `json:"steps" validate:"gte=0,lte=150"`
}
