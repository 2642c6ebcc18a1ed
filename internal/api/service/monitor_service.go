package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"atelier/internal/api/models"
)

// StatusCache persists health snapshots for the ops endpoint.
type StatusCache interface {
	Save(statuses []models.DeploymentStatus, ttl time.Duration) error
}

// MonitorService sweeps deployment health on a fixed interval, caches the
// snapshot and broadcasts it. Purely observational: selection re-probes
// on every call and never reads monitor output.
type MonitorService struct {
	deployments *DeploymentService
	cache       StatusCache
	sink        StatusSink
	notifier    *NotifierService
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sweepPeriod time.Duration
	cacheTTL    time.Duration

	// healthy remembers the previous sweep so operators are alerted on
	// the transition, not on every sweep of a dead deployment.
	healthy map[models.DeploymentType]bool
}

func NewMonitorService(deployments *DeploymentService, cache StatusCache, sink StatusSink, notifier *NotifierService, sweepPeriod time.Duration, logger zerolog.Logger) *MonitorService {
	if sweepPeriod <= 0 {
		sweepPeriod = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MonitorService{
		deployments: deployments,
		cache:       cache,
		sink:        sink,
		notifier:    notifier,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		sweepPeriod: sweepPeriod,
		cacheTTL:    3 * sweepPeriod,
		healthy:     make(map[models.DeploymentType]bool),
	}
}

// Start begins the background sweep loop.
func (slf *MonitorService) Start() {
	slf.logger.Info().Dur("period", slf.sweepPeriod).Msg("Starting deployment monitor")
	slf.wg.Add(1)
	go slf.loop()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (slf *MonitorService) Stop() {
	slf.logger.Info().Msg("Stopping deployment monitor")
	slf.cancel()
	slf.wg.Wait()
	slf.logger.Info().Msg("Deployment monitor stopped")
}

func (slf *MonitorService) loop() {
	defer slf.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slf.logger.Error().Interface("panic", r).Msg("Deployment monitor panicked, restarting")
			slf.wg.Add(1)
			go slf.loop()
		}
	}()

	// Sweep immediately so the cache is warm before the first tick.
	slf.Sweep(slf.ctx)

	ticker := time.NewTicker(slf.sweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-slf.ctx.Done():
			return
		case <-ticker.C:
			slf.Sweep(slf.ctx)
		}
	}
}

// Sweep probes every deployment once, stores and broadcasts the snapshot
// and alerts on health transitions.
func (slf *MonitorService) Sweep(ctx context.Context) []models.DeploymentStatus {
	statuses := slf.deployments.StatusSnapshot(ctx)

	if slf.cache != nil {
		if err := slf.cache.Save(statuses, slf.cacheTTL); err != nil {
			slf.logger.Warn().Err(err).Msg("Failed to cache deployment statuses")
		}
	}
	if slf.sink != nil {
		slf.sink.PublishDeploymentStatus(statuses)
	}

	for _, status := range statuses {
		was, seen := slf.healthy[status.Type]
		slf.healthy[status.Type] = status.Healthy

		if status.Healthy {
			if seen && !was {
				slf.logger.Info().Str("type", string(status.Type)).Msg("Deployment recovered")
			}
			continue
		}
		if !seen || was {
			slf.logger.Warn().Str("type", string(status.Type)).Msg("Deployment went unhealthy")
			if slf.notifier != nil {
				slf.notifier.NotifyDeploymentDown(status)
			}
		}
	}

	return statuses
}
