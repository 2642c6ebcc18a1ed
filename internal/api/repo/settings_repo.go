package repo

import (
	"fmt"

	"atelier/internal/api/models"
	"atelier/pkg"
)

// SettingsRepository stores per-caller generation preferences in Redis.
type SettingsRepository struct{}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{}
}

func settingsKey(callerID uint) string {
	return fmt.Sprintf("settings:caller:%d", callerID)
}

// Find returns the caller's settings, or nil when none are stored.
func (slf *SettingsRepository) Find(callerID uint) (*models.CallerSettings, error) {
	var settings models.CallerSettings
	if err := pkg.RedisGet(settingsKey(callerID), &settings); err != nil {
		if pkg.IsRedisNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// Save stores the caller's settings without expiry.
func (slf *SettingsRepository) Save(callerID uint, settings models.CallerSettings) error {
	return pkg.RedisSet(settingsKey(callerID), settings, 0)
}

// Delete removes the caller's settings.
func (slf *SettingsRepository) Delete(callerID uint) error {
	return pkg.RedisDelete(settingsKey(callerID))
}
