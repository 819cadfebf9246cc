// internal/services/application_service.go
package services

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/database"
	"github.com/loanbridge/loanbridge-backend/internal/models"
	"github.com/loanbridge/loanbridge-backend/internal/utils"
)

// ApplicationService manages the borrower side of the application lifecycle:
// create, submit, review, withdraw. All status changes funnel through the
// status transition service, except withdrawal which has its own guard.
type ApplicationService struct {
	db                *gorm.DB
	auditService      *AuditService
	notifications     *NotificationService
	statusTransitions *StatusTransitionService
	clock             clock.Clock
}

func NewApplicationService(db *gorm.DB, auditService *AuditService,
	notifications *NotificationService, statusTransitions *StatusTransitionService,
	clk clock.Clock) *ApplicationService {
	if clk == nil {
		clk = clock.New()
	}
	return &ApplicationService{
		db:                db,
		auditService:      auditService,
		notifications:     notifications,
		statusTransitions: statusTransitions,
		clock:             clk,
	}
}

type CreateApplicationRequest struct {
	LoanType   models.LoanType `json:"loan_type" validate:"required,loan_type"`
	Currency   models.Currency `json:"currency" validate:"required,currency"`
	LoanAmount decimal.Decimal `json:"loan_amount" validate:"required"`
	TermMonths int             `json:"term_months" validate:"required,min=6,max=480"`
}

// CreateApplication creates a draft application owned by the borrower.
func (s *ApplicationService) CreateApplication(ctx context.Context, borrowerID uuid.UUID,
	req *CreateApplicationRequest) (*models.Application, error) {

	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.LoanAmount.LessThanOrEqual(decimal.Zero) {
		return nil, &apperrors.InvalidStateError{Resource: "application", Msg: "loan_amount must be positive"}
	}

	application := &models.Application{
		BorrowerID: borrowerID,
		LoanType:   req.LoanType,
		Currency:   req.Currency,
		LoanAmount: req.LoanAmount,
		TermMonths: req.TermMonths,
		Status:     models.ApplicationStatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(application).Error; err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"application_id": application.ID,
		"borrower_id":    borrowerID,
		"loan_type":      application.LoanType,
	}).Info("Application created")

	return application, nil
}

// SubmitApplication moves a draft to submitted and stamps the submission time.
func (s *ApplicationService) SubmitApplication(ctx context.Context, borrowerID, applicationID uuid.UUID) (*models.Application, error) {
	application, err := s.getOwnedApplication(ctx, borrowerID, applicationID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := s.statusTransitions.RecordTransition(tx, application,
			models.ApplicationStatusSubmitted, &borrowerID, "submitted by borrower"); err != nil {
			return err
		}
		return tx.Model(&models.Application{}).
			Where("id = ?", application.ID).
			Update("submitted_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	application.SubmittedAt = &now
	return application, nil
}

// StartReview moves a submitted application to under_review. Called by the
// platform once an application enters the matching pipeline.
func (s *ApplicationService) StartReview(ctx context.Context, applicationID uuid.UUID, reviewerID *uuid.UUID) (*models.Application, error) {
	var application models.Application
	if err := s.db.WithContext(ctx).First(&application, "id = ?", applicationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("application %s: %w", applicationID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return s.statusTransitions.RecordTransition(tx, &application,
			models.ApplicationStatusUnderReview, reviewerID, "review started")
	})
	if err != nil {
		return nil, err
	}
	return &application, nil
}

// withdrawableStatuses lists the states a borrower may withdraw from. This is
// a separate guard from the transition table: withdrawal is a borrower right,
// not a pipeline step.
var withdrawableStatuses = map[models.ApplicationStatus]bool{
	models.ApplicationStatusDraft:           true,
	models.ApplicationStatusSubmitted:       true,
	models.ApplicationStatusUnderReview:     true,
	models.ApplicationStatusOffersAvailable: true,
}

// WithdrawApplication takes the application to the terminal withdrawn state.
// Live offers on it are withdrawn as well so lenders see a consistent view.
func (s *ApplicationService) WithdrawApplication(ctx context.Context, borrowerID, applicationID uuid.UUID, reason string) (*models.Application, error) {
	application, err := s.getOwnedApplication(ctx, borrowerID, applicationID)
	if err != nil {
		return nil, err
	}

	if !withdrawableStatuses[application.Status] {
		return nil, &apperrors.InvalidStateError{
			Resource: "application",
			State:    string(application.Status),
			Msg:      fmt.Sprintf("application in status %s cannot be withdrawn", application.Status),
		}
	}

	now := s.clock.Now()
	oldStatus := application.Status

	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&models.Application{}).
			Where("id = ? AND version = ?", application.ID, application.Version).
			Updates(map[string]interface{}{
				"status":            models.ApplicationStatusWithdrawn,
				"version":           application.Version + 1,
				"withdrawn_at":      now,
				"withdrawal_reason": reason,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to withdraw application: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrConcurrencyConflict
		}

		history := &models.ApplicationStatusHistory{
			ApplicationID:   application.ID,
			OldStatus:       oldStatus,
			NewStatus:       models.ApplicationStatusWithdrawn,
			ChangedByUserID: &borrowerID,
			ChangeReason:    reason,
		}
		if err := tx.Create(history).Error; err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}

		// Live offers follow the application out.
		if err := tx.Model(&models.Offer{}).
			Where("application_id = ? AND offer_status IN ?", application.ID,
				[]models.OfferStatus{models.OfferStatusCalculated, models.OfferStatusSubmitted}).
			Update("offer_status", models.OfferStatusWithdrawn).Error; err != nil {
			return fmt.Errorf("failed to withdraw offers: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	application.Status = models.ApplicationStatusWithdrawn
	application.Version++
	application.WithdrawnAt = &now
	application.WithdrawalReason = reason

	s.auditService.LogAction("Application", application.ID, models.AuditActionApplicationWithdrawn, &borrowerID, "USER")

	go func() {
		if err := s.notifications.NotifyUser(borrowerID, models.NotificationTypeAppWithdrawn,
			"Application withdrawn",
			"Your loan application has been withdrawn.",
			models.JSONB{"application_id": application.ID.String()}); err != nil {
			logrus.WithError(err).Error("Failed to notify borrower of withdrawal")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"application_id": application.ID,
		"old_status":     oldStatus,
	}).Info("Application withdrawn")

	return application, nil
}

// GetApplication returns the application with offers, enforcing borrower
// ownership.
func (s *ApplicationService) GetApplication(ctx context.Context, borrowerID, applicationID uuid.UUID) (*models.Application, error) {
	var application models.Application
	err := s.db.WithContext(ctx).
		Preload("Offers").
		First(&application, "id = ?", applicationID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("application %s: %w", applicationID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if application.BorrowerID != borrowerID {
		return nil, fmt.Errorf("application %s does not belong to user: %w", applicationID, apperrors.ErrUnauthorized)
	}
	return &application, nil
}

// ListApplications returns the borrower's applications, newest first.
func (s *ApplicationService) ListApplications(ctx context.Context, borrowerID uuid.UUID,
	params utils.PaginationParams) (utils.PaginationResult, error) {

	query := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("borrower_id = ?", borrowerID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to count applications: %w", err)
	}

	var applications []models.Application
	err := utils.ApplyPagination(utils.ApplySort(query, params, []string{"created_at", "status", "loan_amount"}), params).
		Find(&applications).Error
	if err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to list applications: %w", err)
	}

	return utils.CreatePaginationResult(applications, total, params), nil
}

// GetStatusHistory returns the application's status history after an
// ownership check.
func (s *ApplicationService) GetStatusHistory(ctx context.Context, borrowerID, applicationID uuid.UUID) ([]models.ApplicationStatusHistory, error) {
	if _, err := s.getOwnedApplication(ctx, borrowerID, applicationID); err != nil {
		return nil, err
	}
	return s.statusTransitions.GetHistory(applicationID)
}

func (s *ApplicationService) getOwnedApplication(ctx context.Context, borrowerID, applicationID uuid.UUID) (*models.Application, error) {
	var application models.Application
	err := s.db.WithContext(ctx).First(&application, "id = ?", applicationID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("application %s: %w", applicationID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if application.BorrowerID != borrowerID {
		return nil, fmt.Errorf("application %s does not belong to user: %w", applicationID, apperrors.ErrUnauthorized)
	}
	return &application, nil
}
