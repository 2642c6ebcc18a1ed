package repo

import (
	"atelier"
	"atelier/internal/api/models"

	"gorm.io/gorm"
)

type GenerationRepository struct {
	Db *gorm.DB
}

func NewGenerationRepository() *GenerationRepository {
	return &GenerationRepository{Db: atelier.DB}
}

// Create inserts a new generation record
func (slf *GenerationRepository) Create(record *models.GenerationRecord) error {
	return slf.Db.Create(record).Error
}

// FindByID retrieves a generation record by ID
func (slf *GenerationRepository) FindByID(id uint) (models.GenerationRecord, error) {
	var record models.GenerationRecord
	err := slf.Db.First(&record, id).Error
	return record, err
}

// FindByPromptID retrieves the record tied to a backend prompt id
func (slf *GenerationRepository) FindByPromptID(promptID string) (models.GenerationRecord, error) {
	var record models.GenerationRecord
	err := slf.Db.Where("prompt_id = ?", promptID).First(&record).Error
	return record, err
}

// FindRecent retrieves the newest records, most recent first
func (slf *GenerationRepository) FindRecent(limit int) ([]models.GenerationRecord, error) {
	var records []models.GenerationRecord
	err := slf.Db.
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// FindPageByCaller retrieves one page of a caller's records, newest first,
// together with the caller's total count
func (slf *GenerationRepository) FindPageByCaller(callerID uint, page, pageSize int) ([]models.GenerationRecord, int64, error) {
	var total int64
	if err := slf.Db.Model(&models.GenerationRecord{}).
		Where("caller_id = ?", callerID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.GenerationRecord
	err := slf.Db.
		Where("caller_id = ?", callerID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	return records, total, err
}

// FindByCaller retrieves a caller's newest records
func (slf *GenerationRepository) FindByCaller(callerID uint, limit int) ([]models.GenerationRecord, error) {
	var records []models.GenerationRecord
	err := slf.Db.
		Where("caller_id = ?", callerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// MarkRunning records backend acceptance of the workflow
func (slf *GenerationRepository) MarkRunning(id uint, promptID string, deployment models.DeploymentType) error {
	return slf.Db.Model(&models.GenerationRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          models.GenerationStatusRunning,
			"prompt_id":       promptID,
			"deployment_type": deployment,
		}).Error
}

// MarkCompleted records the produced outputs and total duration
func (slf *GenerationRepository) MarkCompleted(id uint, outputs models.OutputURLs, durationMs int64) error {
	return slf.Db.Model(&models.GenerationRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      models.GenerationStatusCompleted,
			"outputs":     outputs,
			"duration_ms": durationMs,
		}).Error
}

// MarkFailed records the failure reason
func (slf *GenerationRepository) MarkFailed(id uint, lastError string) error {
	return slf.Db.Model(&models.GenerationRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.GenerationStatusFailed,
			"last_error": lastError,
		}).Error
}

// CountByStatus returns how many records sit in each status
func (slf *GenerationRepository) CountByStatus() (map[models.GenerationStatus]int64, error) {
	type row struct {
		Status models.GenerationStatus
		Count  int64
	}
	var rows []row
	err := slf.Db.Model(&models.GenerationRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.GenerationStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
