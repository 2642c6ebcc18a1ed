package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"atelier/internal/api/models"
	"atelier/internal/comfy"
)

// HealthProber is the slice of the backend client the registry needs: the
// queue probe doubles as the liveness check.
type HealthProber interface {
	QueueStatus(ctx context.Context) (int, error)
}

// ProberFactory builds a prober for a deployment's base URL. Tests swap
// this for stubs; production uses the real backend client.
type ProberFactory func(baseURL string) HealthProber

// DeploymentService is the deployment registry and selector. Registration
// happens once at startup; afterwards the set is read-only and selection
// only probes health.
type DeploymentService struct {
	mu           sync.RWMutex
	deployments  map[models.DeploymentType]models.Deployment
	initialized  bool
	probers      ProberFactory
	probeTimeout time.Duration
	logger       zerolog.Logger
}

func NewDeploymentService(probers ProberFactory, logger zerolog.Logger) *DeploymentService {
	if probers == nil {
		probers = func(baseURL string) HealthProber {
			return comfy.NewClient(baseURL)
		}
	}
	return &DeploymentService{
		deployments:  make(map[models.DeploymentType]models.Deployment),
		probers:      probers,
		probeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// Initialize registers the configured deployments, one per type. The first
// call wins; repeated calls are no-ops so a re-read config cannot swap the
// registry under running requests.
func (slf *DeploymentService) Initialize(deployments []models.Deployment) {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	if slf.initialized {
		slf.logger.Warn().Msg("Deployment registry already initialized, ignoring repeat call")
		return
	}

	for _, d := range deployments {
		if d.Type == "" || d.BaseURL == "" {
			slf.logger.Warn().Str("name", d.Name).Msg("Skipping deployment without type or base url")
			continue
		}
		if _, dup := slf.deployments[d.Type]; dup {
			slf.logger.Warn().Str("type", string(d.Type)).Msg("Duplicate deployment type, keeping first")
			continue
		}
		slf.deployments[d.Type] = d
		slf.logger.Info().
			Str("type", string(d.Type)).
			Str("name", d.Name).
			Str("baseUrl", d.BaseURL).
			Int("priority", d.Priority).
			Msg("Registered deployment")
	}
	slf.initialized = true
}

// Get returns the deployment registered for a type.
func (slf *DeploymentService) Get(dtype models.DeploymentType) (models.Deployment, error) {
	slf.mu.RLock()
	defer slf.mu.RUnlock()

	d, ok := slf.deployments[dtype]
	if !ok {
		return models.Deployment{}, fmt.Errorf("type %s: %w", dtype, models.ErrDeploymentNotFound)
	}
	return d, nil
}

// List returns all registered deployments, lowest priority value first.
func (slf *DeploymentService) List() []models.Deployment {
	slf.mu.RLock()
	defer slf.mu.RUnlock()

	out := make([]models.Deployment, 0, len(slf.deployments))
	for _, d := range slf.deployments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// SelectBest filters deployments by the caller's hard constraints, probes
// the survivors concurrently and picks the preferred type when healthy,
// otherwise the healthy one with the lowest priority value.
func (slf *DeploymentService) SelectBest(ctx context.Context, prefs models.DeploymentPreferences) (models.Deployment, error) {
	var candidates []models.Deployment
	for _, d := range slf.List() {
		if prefs.RequireRealtime && !d.Capabilities.Realtime {
			continue
		}
		if prefs.RequirePrivacy && d.Capabilities.Privacy != models.PrivacyComplete {
			continue
		}
		if prefs.FreeOnly && d.Capabilities.Cost != models.CostFree {
			continue
		}
		candidates = append(candidates, d)
	}
	if len(candidates) == 0 {
		return models.Deployment{}, fmt.Errorf("no deployment matches constraints: %w", models.ErrNoDeploymentAvailable)
	}

	healthy := slf.probeAll(ctx, candidates)
	if len(healthy) == 0 {
		return models.Deployment{}, fmt.Errorf("all %d candidate deployments unhealthy: %w", len(candidates), models.ErrNoDeploymentAvailable)
	}

	if prefs.PreferredType != "" {
		for _, d := range healthy {
			if d.Type == prefs.PreferredType {
				return d, nil
			}
		}
		slf.logger.Debug().
			Str("preferred", string(prefs.PreferredType)).
			Msg("Preferred deployment unavailable, falling back to priority order")
	}

	// healthy preserves the priority order of List
	return healthy[0], nil
}

// StatusSnapshot probes every registered deployment concurrently and
// returns one row per deployment, lowest priority value first.
func (slf *DeploymentService) StatusSnapshot(ctx context.Context) []models.DeploymentStatus {
	deployments := slf.List()
	statuses := make([]models.DeploymentStatus, len(deployments))

	var wg sync.WaitGroup
	for i, d := range deployments {
		wg.Add(1)
		go func(i int, d models.Deployment) {
			defer wg.Done()
			depth, err := slf.probe(ctx, d)
			statuses[i] = models.DeploymentStatus{
				Type:         d.Type,
				Name:         d.Name,
				Healthy:      err == nil,
				QueueDepth:   depth,
				Priority:     d.Priority,
				Capabilities: d.Capabilities,
			}
		}(i, d)
	}
	wg.Wait()

	return statuses
}

// probeAll returns the healthy subset of candidates, preserving order.
func (slf *DeploymentService) probeAll(ctx context.Context, candidates []models.Deployment) []models.Deployment {
	type result struct {
		depth int
		err   error
	}
	results := make([]result, len(candidates))

	var wg sync.WaitGroup
	for i, d := range candidates {
		wg.Add(1)
		go func(i int, d models.Deployment) {
			defer wg.Done()
			depth, err := slf.probe(ctx, d)
			results[i] = result{depth: depth, err: err}
		}(i, d)
	}
	wg.Wait()

	var healthy []models.Deployment
	for i, d := range candidates {
		if results[i].err != nil {
			slf.logger.Debug().
				Err(results[i].err).
				Str("type", string(d.Type)).
				Msg("Deployment failed health probe")
			continue
		}
		healthy = append(healthy, d)
	}
	return healthy
}

func (slf *DeploymentService) probe(ctx context.Context, d models.Deployment) (int, error) {
	pctx, cancel := context.WithTimeout(ctx, slf.probeTimeout)
	defer cancel()
	return slf.probers(d.BaseURL).QueueStatus(pctx)
}
