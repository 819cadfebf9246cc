// internal/services/status_transition_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// StatusTransitionService owns the application status state machine. Every
// status mutation in the system goes through RecordTransition so the
// append-only history stays complete.
type StatusTransitionService struct {
	db           *gorm.DB
	auditService *AuditService
}

func NewStatusTransitionService(db *gorm.DB, auditService *AuditService) *StatusTransitionService {
	return &StatusTransitionService{
		db:           db,
		auditService: auditService,
	}
}

// validTransitions is the full transition table. States absent from the map
// (rejected, expired, withdrawn, completed) are terminal.
var validTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationStatusDraft:       {models.ApplicationStatusSubmitted},
	models.ApplicationStatusSubmitted:   {models.ApplicationStatusUnderReview},
	models.ApplicationStatusUnderReview: {models.ApplicationStatusOffersAvailable, models.ApplicationStatusRejected},
	models.ApplicationStatusOffersAvailable: {
		models.ApplicationStatusAccepted,
		models.ApplicationStatusRejected,
		models.ApplicationStatusExpired,
	},
	// ACCEPTED may revert to SUBMITTED when the accepted offer expires.
	models.ApplicationStatusAccepted: {models.ApplicationStatusCompleted, models.ApplicationStatusSubmitted},
}

// IsValidTransition reports whether old -> new is allowed by the table.
func (s *StatusTransitionService) IsValidTransition(old, new models.ApplicationStatus) bool {
	for _, allowed := range validTransitions[old] {
		if allowed == new {
			return true
		}
	}
	return false
}

// RecordTransition validates old -> new, updates the application row with an
// optimistic version check and appends a history entry, all inside tx. An
// invalid transition fails with InvalidTransitionError and performs no write;
// a lost version race fails with ErrConcurrencyConflict.
func (s *StatusTransitionService) RecordTransition(tx *gorm.DB, application *models.Application,
	newStatus models.ApplicationStatus, changedBy *uuid.UUID, reason string) error {

	oldStatus := application.Status
	if !s.IsValidTransition(oldStatus, newStatus) {
		return &apperrors.InvalidTransitionError{From: oldStatus, To: newStatus}
	}

	result := tx.Model(&models.Application{}).
		Where("id = ? AND version = ?", application.ID, application.Version).
		Updates(map[string]interface{}{
			"status":  newStatus,
			"version": application.Version + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update application status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConcurrencyConflict
	}

	history := &models.ApplicationStatusHistory{
		ApplicationID:   application.ID,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		ChangedByUserID: changedBy,
		ChangeReason:    reason,
	}
	if err := tx.Create(history).Error; err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}

	application.Status = newStatus
	application.Version++

	if s.auditService != nil {
		s.auditService.LogAction("Application", application.ID, models.AuditActionApplicationStatusChanged, changedBy, "SYSTEM")
	}

	logrus.WithFields(logrus.Fields{
		"application_id": application.ID,
		"old_status":     oldStatus,
		"new_status":     newStatus,
	}).Info("Status transition recorded")

	return nil
}

// GetHistory returns the append-only status history, oldest first.
func (s *StatusTransitionService) GetHistory(applicationID uuid.UUID) ([]models.ApplicationStatusHistory, error) {
	var history []models.ApplicationStatusHistory
	if err := s.db.Where("application_id = ?", applicationID).
		Order("created_at asc").Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch status history: %w", err)
	}
	return history, nil
}
