// internal/services/audit_service.go
package services

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// AuditService is an append-only audit sink. Writes happen asynchronously and
// failures are logged but never propagated; audit must not roll back or delay
// business transactions.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) LogAction(resourceType string, resourceID uuid.UUID,
	action models.AuditAction, userID *uuid.UUID, actorType string) {

	entry := &models.AuditLog{
		UserID:       userID,
		ActorType:    actorType,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &resourceID,
	}
	s.write(entry)
}

func (s *AuditService) LogActionWithValues(resourceType string, resourceID uuid.UUID,
	action models.AuditAction, oldValues, newValues models.JSONB) {

	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
	}
	s.write(entry)
}

func (s *AuditService) write(entry *models.AuditLog) {
	go func() {
		if err := s.db.Create(entry).Error; err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"action":        entry.Action,
				"resource_type": entry.ResourceType,
			}).Error("Failed to write audit log")
		}
	}()
}
