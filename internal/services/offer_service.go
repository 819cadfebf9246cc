// internal/services/offer_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/database"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// OfferService covers the lender-facing offer operations: confirming a
// calculated offer as a formal submission, withdrawing it, and listing.
type OfferService struct {
	db            *gorm.DB
	config        *config.Config
	auditService  *AuditService
	notifications *NotificationService
	clock         clock.Clock
}

func NewOfferService(db *gorm.DB, cfg *config.Config, auditService *AuditService,
	notifications *NotificationService, clk clock.Clock) *OfferService {
	if clk == nil {
		clk = clock.New()
	}
	return &OfferService{
		db:            db,
		config:        cfg,
		auditService:  auditService,
		notifications: notifications,
		clock:         clk,
	}
}

// SubmitOffer confirms a calculated offer on behalf of the bank. The validity
// window restarts from the submission instant and the expiry warning flag is
// reset so the bank gets warned again for the fresh window.
func (s *OfferService) SubmitOffer(ctx context.Context, bankID, offerID uuid.UUID, officerID *uuid.UUID) (*models.Offer, error) {
	offer, err := s.getBankOffer(ctx, bankID, offerID)
	if err != nil {
		return nil, err
	}

	if offer.OfferStatus != models.OfferStatusCalculated {
		return nil, &apperrors.InvalidStateError{
			Resource: "offer",
			State:    string(offer.OfferStatus),
			Msg:      fmt.Sprintf("offer in status %s cannot be submitted", offer.OfferStatus),
		}
	}

	now := s.clock.Now()
	expiresAt := now.Add(time.Duration(s.config.Offer.ValidityPeriodHours) * time.Hour)

	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&models.Offer{}).
			Where("id = ? AND offer_status = ?", offer.ID, models.OfferStatusCalculated).
			Updates(map[string]interface{}{
				"offer_status":       models.OfferStatusSubmitted,
				"offer_submitted_at": now,
				"expires_at":         expiresAt,
				"notified":           false,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to submit offer: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrConcurrencyConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	offer.OfferStatus = models.OfferStatusSubmitted
	offer.OfferSubmittedAt = &now
	offer.ExpiresAt = expiresAt
	offer.Notified = false

	s.auditService.LogAction("Offer", offer.ID, models.AuditActionOfferSubmitted, officerID, "BANK")

	logrus.WithFields(logrus.Fields{
		"offer_id":   offer.ID,
		"bank_id":    bankID,
		"expires_at": expiresAt,
	}).Info("Offer submitted")

	return offer, nil
}

// WithdrawOffer pulls a live offer off the table. An offer the borrower has
// already accepted cannot be withdrawn.
func (s *OfferService) WithdrawOffer(ctx context.Context, bankID, offerID uuid.UUID, officerID *uuid.UUID) (*models.Offer, error) {
	offer, err := s.getBankOffer(ctx, bankID, offerID)
	if err != nil {
		return nil, err
	}

	switch offer.OfferStatus {
	case models.OfferStatusCalculated, models.OfferStatusSubmitted:
		// withdrawable
	default:
		return nil, &apperrors.InvalidStateError{
			Resource: "offer",
			State:    string(offer.OfferStatus),
			Msg:      fmt.Sprintf("offer in status %s cannot be withdrawn", offer.OfferStatus),
		}
	}

	oldStatus := offer.OfferStatus
	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&models.Offer{}).
			Where("id = ? AND offer_status = ?", offer.ID, oldStatus).
			Update("offer_status", models.OfferStatusWithdrawn)
		if result.Error != nil {
			return fmt.Errorf("failed to withdraw offer: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrConcurrencyConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	offer.OfferStatus = models.OfferStatusWithdrawn

	s.auditService.LogActionWithValues("Offer", offer.ID, models.AuditActionOfferWithdrawn,
		models.JSONB{"offer_status": string(oldStatus)},
		models.JSONB{"offer_status": string(models.OfferStatusWithdrawn)})

	logrus.WithFields(logrus.Fields{
		"offer_id": offer.ID,
		"bank_id":  bankID,
	}).Info("Offer withdrawn")

	return offer, nil
}

// GetOffersForApplication lists an application's offers for its borrower.
func (s *OfferService) GetOffersForApplication(ctx context.Context, borrowerID, applicationID uuid.UUID) ([]models.Offer, error) {
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

	var offers []models.Offer
	err = s.db.WithContext(ctx).
		Preload("Bank").
		Where("application_id = ?", applicationID).
		Order("apr asc").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load offers: %w", err)
	}
	return offers, nil
}

// GetBankOffers lists a bank's own offers, newest first.
func (s *OfferService) GetBankOffers(ctx context.Context, bankID uuid.UUID, status models.OfferStatus) ([]models.Offer, error) {
	query := s.db.WithContext(ctx).Where("bank_id = ?", bankID)
	if status != "" {
		query = query.Where("offer_status = ?", status)
	}

	var offers []models.Offer
	if err := query.Order("created_at desc").Find(&offers).Error; err != nil {
		return nil, fmt.Errorf("failed to load bank offers: %w", err)
	}
	return offers, nil
}

func (s *OfferService) getBankOffer(ctx context.Context, bankID, offerID uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.WithContext(ctx).First(&offer, "id = ?", offerID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("offer %s: %w", offerID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if offer.BankID != bankID {
		return nil, fmt.Errorf("offer %s does not belong to bank: %w", offerID, apperrors.ErrUnauthorized)
	}
	return &offer, nil
}
