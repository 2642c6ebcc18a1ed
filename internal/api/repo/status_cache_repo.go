package repo

import (
	"time"

	"atelier/internal/api/models"
	"atelier/pkg"
)

const deploymentStatusKey = "deployments:status"

// StatusCacheRepository keeps the latest deployment health snapshot in
// Redis for the ops endpoint. Selection never reads it; picking a backend
// always re-probes.
type StatusCacheRepository struct{}

func NewStatusCacheRepository() *StatusCacheRepository {
	return &StatusCacheRepository{}
}

// Save stores a snapshot with a TTL so stale health never outlives the
// monitor that wrote it.
func (slf *StatusCacheRepository) Save(statuses []models.DeploymentStatus, ttl time.Duration) error {
	return pkg.RedisSet(deploymentStatusKey, statuses, ttl)
}

// Find returns the cached snapshot, or nil when none is stored.
func (slf *StatusCacheRepository) Find() ([]models.DeploymentStatus, error) {
	var statuses []models.DeploymentStatus
	if err := pkg.RedisGet(deploymentStatusKey, &statuses); err != nil {
		if pkg.IsRedisNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return statuses, nil
}
