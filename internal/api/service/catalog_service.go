package service

import (
	"strings"

	"github.com/rs/zerolog"

	"atelier/internal/api/models"
)

// flagModifiers are the tuning overrides each recognized flag layers onto
// the resolved model's defaults. Quality is applied before fast, so fast
// wins when a caller asks for both.
var flagModifiers = map[string]models.SamplerDefaults{
	"quality": {Steps: 40, CFG: 8.0, Sampler: "dpmpp_2m", Scheduler: "karras"},
	"fast":    {Steps: 12, CFG: 5.0, Sampler: "euler", Scheduler: "normal"},
}

// CatalogService is the read-only model registry. Lookups never fail: an
// unknown handle resolves to the default descriptor, so a caller always
// gets something runnable.
type CatalogService struct {
	byKey      map[string]models.ModelDescriptor
	byFilename map[string]models.ModelDescriptor
	order      []string
	defaultKey string
	logger     zerolog.Logger
}

func NewCatalogService(descriptors []models.ModelDescriptor, logger zerolog.Logger) *CatalogService {
	slf := &CatalogService{
		byKey:      make(map[string]models.ModelDescriptor, len(descriptors)),
		byFilename: make(map[string]models.ModelDescriptor, len(descriptors)),
		logger:     logger,
	}
	for _, d := range descriptors {
		key := strings.ToLower(d.Key)
		if _, dup := slf.byKey[key]; dup {
			slf.logger.Warn().Str("key", d.Key).Msg("Duplicate model key in catalog, keeping first")
			continue
		}
		slf.byKey[key] = d
		slf.byFilename[strings.ToLower(d.Filename)] = d
		slf.order = append(slf.order, key)
		if d.Default && slf.defaultKey == "" {
			slf.defaultKey = key
		}
	}
	if slf.defaultKey == "" && len(slf.order) > 0 {
		slf.defaultKey = slf.order[0]
	}
	return slf
}

// List returns all descriptors in registration order.
func (slf *CatalogService) List() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, 0, len(slf.order))
	for _, key := range slf.order {
		out = append(out, slf.byKey[key])
	}
	return out
}

// Default returns the catalog's fallback descriptor: the one flagged as
// default, the first registered when none is flagged, or the built-in
// fallback when the catalog is empty.
func (slf *CatalogService) Default() models.ModelDescriptor {
	if slf.defaultKey == "" {
		return models.FallbackModel
	}
	return slf.byKey[slf.defaultKey]
}

// Resolve maps a handle to a descriptor, matching the key first, then the
// checkpoint filename. Unknown handles resolve to the default.
func (slf *CatalogService) Resolve(handle string) models.ModelDescriptor {
	h := strings.ToLower(strings.TrimSpace(handle))
	if d, ok := slf.byKey[h]; ok {
		return d
	}
	if d, ok := slf.byFilename[h]; ok {
		return d
	}
	return slf.Default()
}

// ParseFlags scans free text for the recognized selection flags. Anything
// outside the enumerated set is ignored.
func (slf *CatalogService) ParseFlags(text string) models.SelectionFlags {
	var flags models.SelectionFlags
	for _, token := range strings.Fields(strings.ToLower(text)) {
		switch {
		case token == "--hq" || token == "--quality":
			flags.Quality = true
		case token == "--fast" || token == "--draft":
			flags.Fast = true
		case strings.HasPrefix(token, "--model="):
			flags.ModelKey = strings.TrimPrefix(token, "--model=")
		default:
			if _, ok := slf.byKey[token]; ok && flags.ModelKey == "" {
				flags.ModelKey = token
			}
		}
	}
	return flags
}

// ResolveWithFlags parses flags out of free text and returns the resolved
// descriptor with the matched modifiers layered onto its defaults.
func (slf *CatalogService) ResolveWithFlags(text string) (models.ModelDescriptor, models.SelectionFlags) {
	flags := slf.ParseFlags(text)
	desc := slf.Resolve(flags.ModelKey)

	if flags.Quality {
		applyModifier(&desc.Defaults, flagModifiers["quality"])
	}
	if flags.Fast {
		applyModifier(&desc.Defaults, flagModifiers["fast"])
	}
	return desc, flags
}

func applyModifier(base *models.SamplerDefaults, mod models.SamplerDefaults) {
	if mod.Steps > 0 {
		base.Steps = mod.Steps
	}
	if mod.CFG > 0 {
		base.CFG = mod.CFG
	}
	if mod.Sampler != "" {
		base.Sampler = mod.Sampler
	}
	if mod.Scheduler != "" {
		base.Scheduler = mod.Scheduler
	}
}
