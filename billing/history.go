package billing

import (
	"gorm.io/gorm"

	"factura/models"
)

// HistoryService appends and reads the billing audit trail.
type HistoryService struct {
	db *gorm.DB
}

func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db}
}

// record appends an entry using the caller's transaction handle so the entry
// commits or rolls back together with the mutation it describes.
func record(tx *gorm.DB, tenantID uint, actor Actor, action models.BillingAction, description string, metadata map[string]any) error {
	return tx.Create(&models.BillingHistory{
		TenantID:    tenantID,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		PerformedBy: actor.String(),
	}).Error
}

func (s *HistoryService) Record(tenantID uint, actor Actor, action models.BillingAction, description string, metadata map[string]any) error {
	return record(s.db, tenantID, actor, action, description, metadata)
}

// GetHistory returns the most recent entries, optionally for one tenant.
func (s *HistoryService) GetHistory(tenantID uint, limit int) ([]models.BillingHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.Preload("Tenant").Order("created_at DESC").Limit(limit)
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var entries []models.BillingHistory
	err := q.Find(&entries).Error
	return entries, err
}
