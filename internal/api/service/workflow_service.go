package service

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"atelier/internal/api/models"
	"atelier/internal/api/repo"
)

// WorkflowService is the graph engine: it synthesizes canonical
// text-to-image workflows, injects request parameters into arbitrary
// graphs, validates structure and summarizes graphs into metadata.
type WorkflowService struct {
	templates *repo.TemplateRepository
	logger    zerolog.Logger
}

func NewWorkflowService(templates *repo.TemplateRepository, logger zerolog.Logger) *WorkflowService {
	return &WorkflowService{
		templates: templates,
		logger:    logger,
	}
}

// Templates exposes the template store for inventory listings.
func (slf *WorkflowService) Templates() *repo.TemplateRepository {
	return slf.templates
}

// Synthesize builds the canonical text-to-image graph from scratch. It
// cannot fail: every unset request field falls back to an engine default.
// The node ids mirror the backend's stock template so downstream tooling
// recognizes the shape.
func (slf *WorkflowService) Synthesize(req models.GenerationRequest) models.Graph {
	if req.NegativePrompt == "" {
		req.NegativePrompt = models.DefaultNegativePrompt
	}
	if req.Steps <= 0 {
		req.Steps = models.DefaultSteps
	}
	if req.CFG <= 0 {
		req.CFG = models.DefaultCFG
	}
	if req.Width <= 0 {
		req.Width = models.DefaultWidth
	}
	if req.Height <= 0 {
		req.Height = models.DefaultHeight
	}
	if req.Sampler == "" {
		req.Sampler = models.DefaultSampler
	}
	if req.Scheduler == "" {
		req.Scheduler = models.DefaultScheduler
	}
	if req.BatchSize <= 0 {
		req.BatchSize = models.DefaultBatchSize
	}
	if req.FilenamePrefix == "" {
		req.FilenamePrefix = "atelier"
	}
	seed := slf.resolveSeed(req.Seed)

	// Prompt encoders read CLIP from the loader, unless a clip-skip stage
	// sits in between.
	clipSource, clipSlot := "4", 1

	g := models.Graph{
		"4": {
			Class: "CheckpointLoaderSimple",
			Title: "Load Checkpoint",
			Inputs: map[string]models.Input{
				"ckpt_name": models.LiteralInput(req.ModelFilename),
			},
		},
		"5": {
			Class: "EmptyLatentImage",
			Title: "Empty Latent Image",
			Inputs: map[string]models.Input{
				"width":      models.LiteralInput(req.Width),
				"height":     models.LiteralInput(req.Height),
				"batch_size": models.LiteralInput(req.BatchSize),
			},
		},
	}

	if req.ClipSkip > 0 {
		g["10"] = models.Node{
			Class: "CLIPSetLastLayer",
			Title: "CLIP Set Last Layer",
			Inputs: map[string]models.Input{
				"stop_at_clip_layer": models.LiteralInput(-req.ClipSkip),
				"clip":               models.EdgeInput("4", 1),
			},
		}
		clipSource, clipSlot = "10", 0
	}

	g["6"] = models.Node{
		Class: "CLIPTextEncode",
		Title: "CLIP Text Encode (Prompt)",
		Inputs: map[string]models.Input{
			"text": models.LiteralInput(req.Prompt),
			"clip": models.EdgeInput(clipSource, clipSlot),
		},
	}
	g["7"] = models.Node{
		Class: "CLIPTextEncode",
		Title: "CLIP Text Encode (Negative)",
		Inputs: map[string]models.Input{
			"text": models.LiteralInput(req.NegativePrompt),
			"clip": models.EdgeInput(clipSource, clipSlot),
		},
	}
	g["3"] = models.Node{
		Class: "KSampler",
		Title: "KSampler",
		Inputs: map[string]models.Input{
			"seed":         models.LiteralInput(seed),
			"steps":        models.LiteralInput(req.Steps),
			"cfg":          models.LiteralInput(req.CFG),
			"sampler_name": models.LiteralInput(req.Sampler),
			"scheduler":    models.LiteralInput(req.Scheduler),
			"denoise":      models.LiteralInput(1.0),
			"model":        models.EdgeInput("4", 0),
			"positive":     models.EdgeInput("6", 0),
			"negative":     models.EdgeInput("7", 0),
			"latent_image": models.EdgeInput("5", 0),
		},
	}
	g["8"] = models.Node{
		Class: "VAEDecode",
		Title: "VAE Decode",
		Inputs: map[string]models.Input{
			"samples": models.EdgeInput("3", 0),
			"vae":     models.EdgeInput("4", 2),
		},
	}
	g["9"] = models.Node{
		Class: "SaveImage",
		Title: "Save Image",
		Inputs: map[string]models.Input{
			"filename_prefix": models.LiteralInput(req.FilenamePrefix),
			"images":          models.EdgeInput("8", 0),
		},
	}

	return g
}

// Inject writes the request's parameters into a copy of the graph and
// returns it together with the effective seed. The input graph is never
// mutated. Nodes are located by role, never by id, so the same request
// parameterizes synthesized, stored and discovered graphs alike.
func (slf *WorkflowService) Inject(graph models.Graph, req models.GenerationRequest) (models.Graph, int64) {
	out := graph.Clone()
	seed := slf.resolveSeed(req.Seed)

	for _, id := range out.NodesByRole(models.RoleLoader) {
		node := out[id]
		if req.ModelFilename != "" {
			setIfPresent(&node, "ckpt_name", req.ModelFilename)
			setIfPresent(&node, "unet_name", req.ModelFilename)
		}
		out[id] = node
	}

	for _, id := range out.NodesByRole(models.RoleSampler) {
		node := out[id]
		setIfPresent(&node, "seed", seed)
		setIfPresent(&node, "noise_seed", seed)
		if req.Steps > 0 {
			setIfPresent(&node, "steps", req.Steps)
		}
		if req.CFG > 0 {
			setIfPresent(&node, "cfg", req.CFG)
		}
		if req.Sampler != "" {
			setIfPresent(&node, "sampler_name", req.Sampler)
		}
		if req.Scheduler != "" {
			setIfPresent(&node, "scheduler", req.Scheduler)
		}
		out[id] = node
	}

	slf.injectPrompts(out, req)

	for _, id := range out.NodesByRole(models.RoleLatent) {
		node := out[id]
		if req.Width > 0 {
			setIfPresent(&node, "width", req.Width)
		}
		if req.Height > 0 {
			setIfPresent(&node, "height", req.Height)
		}
		if req.BatchSize > 0 {
			setIfPresent(&node, "batch_size", req.BatchSize)
		}
		out[id] = node
	}

	if req.ClipSkip > 0 {
		for _, id := range out.NodesByRole(models.RoleClipSkip) {
			node := out[id]
			setIfPresent(&node, "stop_at_clip_layer", -req.ClipSkip)
			out[id] = node
		}
	}

	if req.FilenamePrefix != "" {
		for _, id := range out.NodesByRole(models.RoleSave) {
			node := out[id]
			setIfPresent(&node, "filename_prefix", req.FilenamePrefix)
			out[id] = node
		}
	}

	return out, seed
}

// negativeMarkers are phrases that only ever appear in exclusion prompts.
// They back the last-resort encoder classification below.
var negativeMarkers = []string{
	"worst quality",
	"low quality",
	"bad anatomy",
	"bad hands",
	"watermark",
	"deformed",
	"blurry",
}

// injectPrompts routes the positive and negative prompt to the right text
// encoders. The reliable path follows the sampler's positive/negative
// edges, which works for any node id scheme. When a graph has no sampler
// edges to trace we fall back to scanning each encoder's current text for
// the exclusion phrases above; a legitimate prompt that happens to contain
// one of them gets misclassified, and there is no structural way to tell
// the difference.
func (slf *WorkflowService) injectPrompts(g models.Graph, req models.GenerationRequest) {
	positive := make(map[string]bool)
	negative := make(map[string]bool)

	for _, id := range g.NodesByRole(models.RoleSampler) {
		node := g[id]
		if in, ok := node.Input("positive"); ok && in.IsEdge() {
			if target, exists := g[in.Edge.Node]; exists && target.Role() == models.RoleTextEncode {
				positive[in.Edge.Node] = true
			}
		}
		if in, ok := node.Input("negative"); ok && in.IsEdge() {
			if target, exists := g[in.Edge.Node]; exists && target.Role() == models.RoleTextEncode {
				negative[in.Edge.Node] = true
			}
		}
	}

	if len(positive) == 0 && len(negative) == 0 {
		encoders := g.NodesByRole(models.RoleTextEncode)
		for _, id := range encoders {
			if text, ok := g[id].Inputs["text"].String(); ok && looksNegative(text) {
				negative[id] = true
			}
		}
		for _, id := range encoders {
			if !negative[id] {
				positive[id] = true
				break
			}
		}
		if len(negative) == 0 && len(encoders) >= 2 {
			negative[encoders[1]] = true
		}
	}

	for id := range positive {
		node := g[id]
		setIfPresent(&node, "text", req.Prompt)
		g[id] = node
	}
	if req.NegativePrompt != "" {
		for id := range negative {
			node := g[id]
			setIfPresent(&node, "text", req.NegativePrompt)
			g[id] = node
		}
	}
}

func looksNegative(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range negativeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StampUniqueFilenames suffixes every save node's filename prefix with a
// short random id, so concurrent generations never overwrite each other.
func (slf *WorkflowService) StampUniqueFilenames(graph models.Graph) models.Graph {
	out := graph.Clone()
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	for _, id := range out.NodesByRole(models.RoleSave) {
		node := out[id]
		prefix, ok := node.Inputs["filename_prefix"].String()
		if !ok || prefix == "" {
			prefix = "atelier"
		}
		node.SetLiteral("filename_prefix", prefix+"_"+suffix)
		out[id] = node
	}
	return out
}

// Validate checks a graph's structure without executing it. Errors mean
// the graph cannot run; warnings mean parameter injection will degrade.
func (slf *WorkflowService) Validate(graph models.Graph) models.ValidationReport {
	report := models.ValidationReport{}

	if len(graph) == 0 {
		report.Errors = append(report.Errors, "graph has no nodes")
		return report
	}

	if !graph.HasRole(models.RoleLoader) {
		report.Errors = append(report.Errors, "no checkpoint loader node")
	}
	if !graph.HasRole(models.RoleSampler) {
		report.Errors = append(report.Errors, "no sampler node")
	}
	if !graph.HasRole(models.RoleDecode) {
		report.Errors = append(report.Errors, "no VAE decode node")
	}
	if !graph.HasRole(models.RoleSave) {
		report.Warnings = append(report.Warnings, "no save image node; outputs will not be persisted")
	}
	if !graph.HasRole(models.RoleTextEncode) {
		report.Warnings = append(report.Warnings, "no text encode nodes; prompt injection will be skipped")
	}
	if !graph.HasRole(models.RoleLatent) {
		report.Warnings = append(report.Warnings, "no latent image node; width and height cannot be set")
	}

	for _, id := range graph.NodesByRole(models.RoleSampler) {
		node := graph[id]
		for _, name := range []string{"model", "positive", "negative", "latent_image"} {
			in, ok := node.Input(name)
			if !ok {
				continue
			}
			if !in.IsEdge() {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("sampler %s input %q is not a connection", id, name))
				continue
			}
			if _, exists := graph[in.Edge.Node]; !exists {
				report.Errors = append(report.Errors,
					fmt.Sprintf("sampler %s input %q references missing node %s", id, name, in.Edge.Node))
			}
		}
	}

	for _, id := range graph.SortedIDs() {
		node := graph[id]
		if node.Role() == models.RoleSampler {
			continue
		}
		for name, in := range node.Inputs {
			if in.IsEdge() {
				if _, exists := graph[in.Edge.Node]; !exists {
					report.Warnings = append(report.Warnings,
						fmt.Sprintf("node %s input %q references missing node %s", id, name, in.Edge.Node))
				}
			}
		}
	}

	report.Valid = len(report.Errors) == 0
	return report
}

// ExtractMetadata summarizes a graph: tuning values read from its nodes
// plus structural capability flags.
func (slf *WorkflowService) ExtractMetadata(graph models.Graph) models.GraphMetadata {
	meta := models.GraphMetadata{
		NodeCount:     len(graph),
		HasLoader:     graph.HasRole(models.RoleLoader),
		HasSampler:    graph.HasRole(models.RoleSampler),
		HasDecoder:    graph.HasRole(models.RoleDecode),
		HasControlNet: graph.HasRole(models.RoleControlNet),
		HasLora:       graph.HasRole(models.RoleLora),
	}

	classSet := make(map[string]bool)
	for _, node := range graph {
		classSet[node.Class] = true
	}
	for class := range classSet {
		meta.ClassTypes = append(meta.ClassTypes, class)
	}
	sort.Strings(meta.ClassTypes)

	if _, sampler, ok := graph.FirstByRole(models.RoleSampler); ok {
		if v, ok := sampler.Inputs["steps"].Int(); ok {
			meta.Steps = v
		}
		if v, ok := sampler.Inputs["cfg"].Float(); ok {
			meta.CFG = v
		}
		if v, ok := sampler.Inputs["sampler_name"].String(); ok {
			meta.Sampler = v
		}
		if v, ok := sampler.Inputs["scheduler"].String(); ok {
			meta.Scheduler = v
		}
	}

	if _, loader, ok := graph.FirstByRole(models.RoleLoader); ok {
		if v, ok := loader.Inputs["ckpt_name"].String(); ok {
			meta.Model = v
		} else if v, ok := loader.Inputs["unet_name"].String(); ok {
			meta.Model = v
		}
	}

	for _, id := range graph.NodesByRole(models.RoleLatent) {
		node := graph[id]
		w, wok := node.Inputs["width"].Int()
		h, hok := node.Inputs["height"].Int()
		if wok && hok {
			meta.Sizes = append(meta.Sizes, models.Size{Width: w, Height: h})
		}
	}

	return meta
}

// Recommend scores every stored template against the requirements and
// returns them best first. Ties break on name for stable output.
func (slf *WorkflowService) Recommend(reqs models.WorkflowRequirements) ([]models.WorkflowRecommendation, error) {
	names := slf.templates.Names()
	if len(names) == 0 {
		return nil, models.ErrNoTemplatesAvailable
	}

	recs := make([]models.WorkflowRecommendation, 0, len(names))
	for _, name := range names {
		graph, _ := slf.templates.Get(name)
		meta := slf.ExtractMetadata(graph)
		rec := models.WorkflowRecommendation{Name: name, Metadata: meta}

		if meta.HasSampler {
			rec.Score += 10
			rec.Reasons = append(rec.Reasons, "has a sampler node")
		} else {
			rec.Score -= 100
			rec.Reasons = append(rec.Reasons, "no sampler node")
		}

		if reqs.NeedsControlNet {
			if meta.HasControlNet {
				rec.Score += 25
				rec.Reasons = append(rec.Reasons, "supports ControlNet")
			} else {
				rec.Score -= 50
				rec.Reasons = append(rec.Reasons, "missing ControlNet support")
			}
		}
		if reqs.NeedsLora {
			if meta.HasLora {
				rec.Score += 25
				rec.Reasons = append(rec.Reasons, "supports LoRA")
			} else {
				rec.Score -= 50
				rec.Reasons = append(rec.Reasons, "missing LoRA support")
			}
		}

		if reqs.PreferredSteps > 0 && meta.Steps > 0 {
			distance := meta.Steps - reqs.PreferredSteps
			if distance < 0 {
				distance = -distance
			}
			bonus := 20 - distance
			if bonus < 0 {
				bonus = 0
			}
			rec.Score += bonus
			rec.Reasons = append(rec.Reasons, fmt.Sprintf("configured for %d steps", meta.Steps))
		}

		if reqs.MaxNodes > 0 {
			if meta.NodeCount > reqs.MaxNodes {
				rec.Score -= 30
				rec.Reasons = append(rec.Reasons, fmt.Sprintf("%d nodes exceeds budget of %d", meta.NodeCount, reqs.MaxNodes))
			} else {
				rec.Score += 10
				rec.Reasons = append(rec.Reasons, "within node budget")
			}
		}

		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Name < recs[j].Name
	})
	return recs, nil
}

func (slf *WorkflowService) resolveSeed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	// Drawn seeds are strictly positive.
	return 1 + rand.Int63n(models.SeedRange-1)
}

// setIfPresent overwrites an input only when the node already has it, so
// injection never invents inputs on classes it does not know.
func setIfPresent(node *models.Node, name string, v any) {
	if node.HasInput(name) {
		node.SetLiteral(name, v)
	}
}
