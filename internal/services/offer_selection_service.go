// internal/services/offer_selection_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/database"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// OfferSelectionService promotes exactly one offer per application to
// accepted. The demote + promote + status update run as a single transaction;
// the partial unique index on offers plus the application version check turn
// concurrent selections into retryable conflicts instead of double accepts.
type OfferSelectionService struct {
	db                *gorm.DB
	auditService      *AuditService
	notifications     *NotificationService
	nextSteps         *NextStepsService
	statusTransitions *StatusTransitionService
	clock             clock.Clock
}

func NewOfferSelectionService(db *gorm.DB, auditService *AuditService,
	notifications *NotificationService, nextSteps *NextStepsService,
	statusTransitions *StatusTransitionService, clk clock.Clock) *OfferSelectionService {
	if clk == nil {
		clk = clock.New()
	}
	return &OfferSelectionService{
		db:                db,
		auditService:      auditService,
		notifications:     notifications,
		nextSteps:         nextSteps,
		statusTransitions: statusTransitions,
		clock:             clk,
	}
}

type SelectOfferResponse struct {
	OfferID        uuid.UUID       `json:"offer_id"`
	BankName       string          `json:"bank_name"`
	Apr            decimal.Decimal `json:"apr"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	ExpiresAt      time.Time       `json:"expires_at"`
	NextSteps      []string        `json:"next_steps"`
	Message        string          `json:"message"`
}

const selectionMaxRetries = 3

// SelectOffer atomically accepts the target offer for the application,
// demoting any previously accepted offer. Conflicting concurrent selections
// are retried a bounded number of times before surfacing
// ErrConcurrencyConflict to the caller.
func (s *OfferSelectionService) SelectOffer(ctx context.Context, applicationID, borrowerID, offerID uuid.UUID) (*SelectOfferResponse, error) {
	logrus.WithFields(logrus.Fields{
		"application_id": applicationID,
		"borrower_id":    borrowerID,
		"offer_id":       offerID,
	}).Debug("Offer selection started")

	var resp *SelectOfferResponse
	var err error

	for attempt := 0; attempt < selectionMaxRetries; attempt++ {
		resp, err = s.selectOnce(ctx, applicationID, borrowerID, offerID)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, apperrors.ErrConcurrencyConflict) {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"application_id": applicationID,
			"attempt":        attempt + 1,
		}).Warn("Offer selection conflict, retrying")
	}

	return nil, err
}

// ChangeOfferSelection re-runs the selection protocol for a new offer; the
// operation is re-entrant by design.
func (s *OfferSelectionService) ChangeOfferSelection(ctx context.Context, applicationID, borrowerID, newOfferID uuid.UUID) (*SelectOfferResponse, error) {
	return s.SelectOffer(ctx, applicationID, borrowerID, newOfferID)
}

func (s *OfferSelectionService) selectOnce(ctx context.Context, applicationID, borrowerID, offerID uuid.UUID) (*SelectOfferResponse, error) {
	var (
		selected    models.Offer
		application models.Application
		demotedID   *uuid.UUID
	)

	txErr := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.First(&application, "id = ?", applicationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("application %s: %w", applicationID, apperrors.ErrNotFound)
			}
			return fmt.Errorf("failed to load application: %w", err)
		}

		if application.BorrowerID != borrowerID {
			logrus.WithFields(logrus.Fields{
				"application_id": applicationID,
				"borrower_id":    borrowerID,
			}).Warn("Unauthorized offer selection attempt")
			return fmt.Errorf("application %s: %w", applicationID, apperrors.ErrUnauthorized)
		}

		if err := tx.First(&selected, "id = ?", offerID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("offer %s: %w", offerID, apperrors.ErrNotFound)
			}
			return fmt.Errorf("failed to load offer: %w", err)
		}

		if selected.ApplicationID != applicationID {
			return fmt.Errorf("offer %s does not belong to application %s: %w",
				offerID, applicationID, apperrors.ErrNotFound)
		}

		now := s.clock.Now()
		if selected.IsExpired(now) {
			s.auditService.LogAction("Offer", offerID, models.AuditActionOfferSelectionFailed,
				&borrowerID, "BORROWER")
			return &apperrors.OfferExpiredError{ExpiredAt: selected.ExpiresAt}
		}

		// The selection must be reachable through the state machine: either
		// the application has offers available, or it already accepted one
		// and the borrower is changing their mind.
		if application.Status != models.ApplicationStatusAccepted &&
			!s.statusTransitions.IsValidTransition(application.Status, models.ApplicationStatusAccepted) {
			return &apperrors.InvalidStateError{
				Resource: "application",
				State:    string(application.Status),
				Msg:      fmt.Sprintf("application in status %s cannot accept offers", application.Status),
			}
		}

		// Demote any previously accepted offer back to calculated.
		var previous models.Offer
		err := tx.Where("application_id = ? AND offer_status = ?",
			applicationID, models.OfferStatusAccepted).First(&previous).Error
		switch {
		case err == nil:
			if previous.ID == offerID {
				// Re-selecting the already accepted offer is a no-op promote.
				break
			}
			result := tx.Model(&models.Offer{}).
				Where("id = ? AND offer_status = ?", previous.ID, models.OfferStatusAccepted).
				Updates(map[string]interface{}{
					"offer_status":         models.OfferStatusCalculated,
					"borrower_selected_at": nil,
				})
			if result.Error != nil {
				return fmt.Errorf("failed to demote previous offer: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return apperrors.ErrConcurrencyConflict
			}
			demotedID = &previous.ID
		case err == gorm.ErrRecordNotFound:
			// nothing accepted yet
		default:
			return fmt.Errorf("failed to look up accepted offer: %w", err)
		}

		// Promote the target offer. The partial unique index rejects a
		// second accepted row should a concurrent transaction slip through.
		result := tx.Model(&models.Offer{}).
			Where("id = ?", offerID).
			Updates(map[string]interface{}{
				"offer_status":         models.OfferStatusAccepted,
				"borrower_selected_at": now,
			})
		if result.Error != nil {
			if database.IsUniqueViolation(result.Error) || database.IsSerializationFailure(result.Error) {
				return apperrors.ErrConcurrencyConflict
			}
			return fmt.Errorf("failed to promote offer: %w", result.Error)
		}
		selected.OfferStatus = models.OfferStatusAccepted
		selected.BorrowerSelectedAt = &now

		if application.Status != models.ApplicationStatusAccepted {
			if err := s.statusTransitions.RecordTransition(tx, &application,
				models.ApplicationStatusAccepted, &borrowerID, "offer selected"); err != nil {
				return err
			}
		}

		return nil
	})

	if txErr != nil {
		if database.IsSerializationFailure(txErr) || database.IsUniqueViolation(txErr) {
			return nil, apperrors.ErrConcurrencyConflict
		}
		return nil, txErr
	}

	s.afterSelection(&application, &selected, demotedID, borrowerID)

	var bank models.Bank
	bankName := ""
	if err := s.db.First(&bank, "id = ?", selected.BankID).Error; err == nil {
		bankName = bank.Name
	}

	return &SelectOfferResponse{
		OfferID:        selected.ID,
		BankName:       bankName,
		Apr:            selected.Apr,
		MonthlyPayment: selected.MonthlyPayment,
		TotalCost:      selected.TotalCost,
		ExpiresAt:      selected.ExpiresAt,
		NextSteps:      s.nextSteps.GenerateNextSteps(application.LoanType),
		Message:        "Offer selected successfully. Application status updated to accepted.",
	}, nil
}

// afterSelection emits audit records and notifications. Runs after commit;
// failures here never affect the selection itself.
func (s *OfferSelectionService) afterSelection(application *models.Application,
	offer *models.Offer, demotedID *uuid.UUID, borrowerID uuid.UUID) {

	if demotedID != nil {
		s.auditService.LogActionWithValues("Offer", *demotedID, models.AuditActionOfferDeselected,
			models.JSONB{"offer_status": string(models.OfferStatusAccepted)},
			models.JSONB{"offer_status": string(models.OfferStatusCalculated)})
	}

	s.auditService.LogActionWithValues("Offer", offer.ID, models.AuditActionOfferSelected,
		nil, models.JSONB{
			"borrower_id":    borrowerID.String(),
			"application_id": application.ID.String(),
			"bank_id":        offer.BankID.String(),
			"apr":            offer.Apr.String(),
		})

	go func() {
		if err := s.notifications.NotifyUser(borrowerID, models.NotificationTypeOfferSelected,
			"Offer selected",
			"Your offer selection has been recorded. Check the next steps to proceed.",
			models.JSONB{"offer_id": offer.ID.String()}); err != nil {
			logrus.WithError(err).Error("Failed to notify borrower of selection")
		}

		if err := s.notifications.NotifyBank(offer.BankID, models.NotificationTypeOfferSelected,
			"Offer accepted by borrower",
			"A borrower accepted your offer.",
			models.JSONB{"offer_id": offer.ID.String(), "application_id": application.ID.String()}); err != nil {
			logrus.WithError(err).Error("Failed to notify bank of selection")
		}
	}()
}
