package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/api/models"
)

// stubStatusCache records every saved snapshot.
type stubStatusCache struct {
	mu      sync.Mutex
	saves   [][]models.DeploymentStatus
	ttls    []time.Duration
	saveErr error
}

func (s *stubStatusCache) Save(statuses []models.DeploymentStatus, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, statuses)
	s.ttls = append(s.ttls, ttl)
	return s.saveErr
}

func (s *stubStatusCache) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

// stubStatusSink records every broadcast snapshot.
type stubStatusSink struct {
	mu        sync.Mutex
	published [][]models.DeploymentStatus
}

func (s *stubStatusSink) PublishDeploymentStatus(statuses []models.DeploymentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, statuses)
}

func (s *stubStatusSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

// ============ Sweep Tests ============

func TestMonitor_Sweep_CachesAndBroadcasts(t *testing.T) {
	prober := newStubProber()
	prober.depths["http://local:8188"] = 1
	prober.errs["http://remote:8188"] = errors.New("down")
	prober.depths["http://serverless:8188"] = 0
	registry := newTestRegistry(prober)

	cache := &stubStatusCache{}
	sink := &stubStatusSink{}
	monitor := NewMonitorService(registry, cache, sink, nil, time.Minute, zerolog.Nop())

	statuses := monitor.Sweep(context.Background())
	require.Len(t, statuses, 3)

	require.Equal(t, 1, cache.count())
	assert.Equal(t, statuses, cache.saves[0])
	assert.Equal(t, 3*time.Minute, cache.ttls[0], "snapshots outlive a couple of missed sweeps")

	require.Equal(t, 1, sink.count())
	assert.Equal(t, statuses, sink.published[0])

	assert.True(t, statuses[0].Healthy)
	assert.Equal(t, 1, statuses[0].QueueDepth)
	assert.False(t, statuses[1].Healthy)
}

func TestMonitor_Sweep_CacheFailureIsNonFatal(t *testing.T) {
	prober := newStubProber()
	prober.depths["http://local:8188"] = 0
	prober.depths["http://remote:8188"] = 0
	prober.depths["http://serverless:8188"] = 0
	registry := newTestRegistry(prober)

	cache := &stubStatusCache{saveErr: errors.New("redis: connection pool timeout")}
	sink := &stubStatusSink{}
	monitor := NewMonitorService(registry, cache, sink, nil, time.Minute, zerolog.Nop())

	statuses := monitor.Sweep(context.Background())
	assert.Len(t, statuses, 3)
	assert.Equal(t, 1, sink.count(), "a failing cache must not block the broadcast")
}

func TestMonitor_Sweep_NilCacheAndSink(t *testing.T) {
	prober := newStubProber()
	prober.depths["http://local:8188"] = 0
	prober.depths["http://remote:8188"] = 0
	prober.depths["http://serverless:8188"] = 0
	registry := newTestRegistry(prober)

	monitor := NewMonitorService(registry, nil, nil, nil, time.Minute, zerolog.Nop())
	assert.Len(t, monitor.Sweep(context.Background()), 3)
}

func TestMonitor_Sweep_TracksTransitions(t *testing.T) {
	prober := newStubProber()
	prober.depths["http://local:8188"] = 0
	prober.depths["http://remote:8188"] = 0
	prober.depths["http://serverless:8188"] = 0
	registry := newTestRegistry(prober)

	monitor := NewMonitorService(registry, nil, nil, nil, time.Minute, zerolog.Nop())

	monitor.Sweep(context.Background())
	assert.True(t, monitor.healthy[models.DeploymentLocal])

	prober.mu.Lock()
	prober.errs["http://local:8188"] = errors.New("down")
	prober.mu.Unlock()

	monitor.Sweep(context.Background())
	assert.False(t, monitor.healthy[models.DeploymentLocal])
	assert.True(t, monitor.healthy[models.DeploymentRemote])

	prober.mu.Lock()
	delete(prober.errs, "http://local:8188")
	prober.mu.Unlock()

	monitor.Sweep(context.Background())
	assert.True(t, monitor.healthy[models.DeploymentLocal])
}

// ============ Loop Tests ============

func TestMonitor_StartStop(t *testing.T) {
	prober := newStubProber()
	prober.depths["http://local:8188"] = 0
	prober.depths["http://remote:8188"] = 0
	prober.depths["http://serverless:8188"] = 0
	registry := newTestRegistry(prober)

	cache := &stubStatusCache{}
	monitor := NewMonitorService(registry, cache, nil, nil, 10*time.Millisecond, zerolog.Nop())

	monitor.Start()
	require.Eventually(t, func() bool { return cache.count() >= 3 }, time.Second, 2*time.Millisecond,
		"the loop sweeps immediately and then on every tick")
	monitor.Stop()

	settled := cache.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, cache.count(), "no sweeps after Stop returns")
}
