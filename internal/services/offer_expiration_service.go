// internal/services/offer_expiration_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/database"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// perOfferExpiryTimeout bounds the transaction for a single offer so one
// stuck row cannot stall the whole sweep.
const perOfferExpiryTimeout = 10 * time.Second

// OfferExpirationService runs the two periodic sweeps: warning lenders about
// offers expiring within the warning window, and expiring offers past their
// expiry. Both sweeps continue past per-offer failures.
type OfferExpirationService struct {
	db                *gorm.DB
	config            *config.Config
	auditService      *AuditService
	notifications     *NotificationService
	statusTransitions *StatusTransitionService
	clock             clock.Clock
}

func NewOfferExpirationService(db *gorm.DB, cfg *config.Config, auditService *AuditService,
	notifications *NotificationService, statusTransitions *StatusTransitionService,
	clk clock.Clock) *OfferExpirationService {
	if clk == nil {
		clk = clock.New()
	}
	return &OfferExpirationService{
		db:                db,
		config:            cfg,
		auditService:      auditService,
		notifications:     notifications,
		statusTransitions: statusTransitions,
		clock:             clk,
	}
}

// CheckExpiringOffers is the warning sweep. Each offer is claimed with a
// conditional update on notified = false before the notification goes out, so
// re-running the sweep on unchanged data never produces a second
// notification.
func (s *OfferExpirationService) CheckExpiringOffers(ctx context.Context) (int, error) {
	now := s.clock.Now()
	windowEnd := now.Add(time.Duration(s.config.Offer.WarningWindowHours) * time.Hour)

	logrus.WithField("window_end", windowEnd).Info("Starting offer expiration warning sweep")

	var expiring []models.Offer
	err := s.db.WithContext(ctx).
		Where("expires_at > ? AND expires_at <= ? AND notified = ? AND offer_status IN ?",
			now, windowEnd, false,
			[]models.OfferStatus{models.OfferStatusCalculated, models.OfferStatusSubmitted}).
		Find(&expiring).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query expiring offers: %w", err)
	}

	logrus.WithField("count", len(expiring)).Info("Found offers expiring within warning window")

	notified := 0
	for i := range expiring {
		offer := &expiring[i]

		// Claim before notify: a concurrent sweep loses this update and
		// skips the offer.
		claim := s.db.WithContext(ctx).Model(&models.Offer{}).
			Where("id = ? AND notified = ?", offer.ID, false).
			Update("notified", true)
		if claim.Error != nil {
			logrus.WithError(claim.Error).WithField("offer_id", offer.ID).
				Error("Failed to claim offer for expiration warning")
			continue
		}
		if claim.RowsAffected == 0 {
			continue // already claimed by another run
		}

		if err := s.notifications.NotifyBank(offer.BankID, models.NotificationTypeOfferExpiringSoon,
			"Offer expiring soon",
			fmt.Sprintf("Your offer expires at %s.", offer.ExpiresAt.Format(time.RFC3339)),
			models.JSONB{
				"offer_id":       offer.ID.String(),
				"application_id": offer.ApplicationID.String(),
				"expires_at":     offer.ExpiresAt.Format(time.RFC3339),
			}); err != nil {
			logrus.WithError(err).WithField("offer_id", offer.ID).
				Error("Failed to notify bank of expiring offer")
			continue
		}

		notified++
	}

	logrus.WithField("notified", notified).Info("Offer expiration warning sweep completed")
	return notified, nil
}

// ExpireOffers is the expiry sweep. Accepted offers become
// expired_with_selection and force the application back to submitted so
// lenders may re-quote; other live offers past expiry become expired with no
// application side effect.
func (s *OfferExpirationService) ExpireOffers(ctx context.Context) (int, error) {
	now := s.clock.Now()
	logrus.Info("Starting offer expiration sweep")

	var expired []models.Offer
	err := s.db.WithContext(ctx).
		Where("expires_at < ? AND offer_status IN ?", now,
			[]models.OfferStatus{
				models.OfferStatusCalculated,
				models.OfferStatusSubmitted,
				models.OfferStatusAccepted,
			}).
		Find(&expired).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query expired offers: %w", err)
	}

	count := 0
	for i := range expired {
		offer := &expired[i]
		offerCtx, cancel := context.WithTimeout(ctx, perOfferExpiryTimeout)
		err := s.expireOffer(offerCtx, offer)
		cancel()
		if err != nil {
			logrus.WithError(err).WithField("offer_id", offer.ID).
				Error("Failed to expire offer")
			continue
		}
		count++
	}

	logrus.WithField("expired", count).Info("Offer expiration sweep completed")
	return count, nil
}

func (s *OfferExpirationService) expireOffer(ctx context.Context, offer *models.Offer) error {
	originalStatus := offer.OfferStatus

	return database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		newStatus := models.OfferStatusExpired
		if originalStatus == models.OfferStatusAccepted {
			newStatus = models.OfferStatusExpiredWithSelection
		}

		// Conditional on the original status so a concurrent sweep or a
		// late selection cannot be clobbered.
		result := tx.Model(&models.Offer{}).
			Where("id = ? AND offer_status = ?", offer.ID, originalStatus).
			Update("offer_status", newStatus)
		if result.Error != nil {
			return fmt.Errorf("failed to update offer status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil // status changed underneath us; leave it alone
		}

		logrus.WithFields(logrus.Fields{
			"offer_id":   offer.ID,
			"old_status": originalStatus,
			"new_status": newStatus,
		}).Info("Expiring offer")

		if originalStatus == models.OfferStatusAccepted {
			if err := s.revertApplication(tx, offer); err != nil {
				return err
			}
		}

		s.auditService.LogActionWithValues("Offer", offer.ID, models.AuditActionOfferExpired,
			models.JSONB{"offer_status": string(originalStatus)},
			models.JSONB{"offer_status": string(newStatus)})

		return nil
	})
}

// revertApplication sends an application whose accepted offer expired back to
// submitted, through the state machine, so lenders may re-quote.
func (s *OfferExpirationService) revertApplication(tx *gorm.DB, offer *models.Offer) error {
	var application models.Application
	if err := tx.First(&application, "id = ?", offer.ApplicationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("failed to load application: %w", err)
	}

	if application.Status != models.ApplicationStatusAccepted {
		return nil
	}

	logrus.WithField("application_id", application.ID).
		Info("Reverting application to submitted after accepted offer expired")

	if err := s.statusTransitions.RecordTransition(tx, &application,
		models.ApplicationStatusSubmitted, nil, "accepted offer expired"); err != nil {
		return err
	}

	go func() {
		if err := s.notifications.NotifyUser(application.BorrowerID, models.NotificationTypeOfferExpired,
			"Accepted offer expired",
			"The offer you accepted has expired. Lenders may submit new offers.",
			models.JSONB{"offer_id": offer.ID.String()}); err != nil {
			logrus.WithError(err).Error("Failed to notify borrower of expired selection")
		}
	}()

	return nil
}
