// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// NotificationService creates in-portal notifications and enqueues outbound
// email into the outbox table. Delivery happens out-of-band through
// RunOutboxDispatcher; enqueue failures are logged and swallowed so they can
// never roll back a business transaction.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
	clock  clock.Clock
}

func NewNotificationService(db *gorm.DB, cfg *config.Config, clk clock.Clock) *NotificationService {
	if clk == nil {
		clk = clock.New()
	}
	return &NotificationService{
		db:     db,
		config: cfg,
		clock:  clk,
	}
}

// NotifyBank creates an in-portal notification addressed to a bank.
func (s *NotificationService) NotifyBank(bankID uuid.UUID, notifType models.NotificationType,
	title, message string, data models.JSONB) error {

	notification := &models.Notification{
		BankID:  &bankID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    data,
	}
	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create bank notification: %w", err)
	}
	return nil
}

// NotifyUser creates an in-portal notification addressed to a borrower or
// bank officer.
func (s *NotificationService) NotifyUser(userID uuid.UUID, notifType models.NotificationType,
	title, message string, data models.JSONB) error {

	notification := &models.Notification{
		UserID:  &userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    data,
	}
	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create user notification: %w", err)
	}
	return nil
}

// EnqueueEmail stores an outbound email for the dispatcher. It never fails
// the caller; a lost enqueue is logged and accepted.
func (s *NotificationService) EnqueueEmail(recipient, subject, body string) {
	email := &models.EmailOutbox{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Status:    models.EmailStatusPending,
	}
	if err := s.db.Create(email).Error; err != nil {
		logrus.WithError(err).WithField("recipient", recipient).Error("Failed to enqueue email")
	}
}

// RunOutboxDispatcher polls the outbox and delivers pending emails until ctx
// is cancelled. Failed sends are marked failed and retried on later polls up
// to maxEmailAttempts.
func (s *NotificationService) RunOutboxDispatcher(ctx context.Context) {
	interval := time.Duration(s.config.Scheduler.OutboxInterval) * time.Second
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval).Info("Email outbox dispatcher started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Email outbox dispatcher stopped")
			return
		case <-ticker.C:
			s.dispatchPending()
		}
	}
}

const maxEmailAttempts = 5

func (s *NotificationService) dispatchPending() {
	var pending []models.EmailOutbox
	err := s.db.Where("status IN ? AND attempts < ?",
		[]models.EmailStatus{models.EmailStatusPending, models.EmailStatusFailed}, maxEmailAttempts).
		Order("created_at asc").Limit(50).Find(&pending).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to scan email outbox")
		return
	}

	for i := range pending {
		email := &pending[i]

		// Claim the row before sending so a concurrent dispatcher run
		// cannot pick it up again.
		claim := s.db.Model(&models.EmailOutbox{}).
			Where("id = ? AND attempts = ?", email.ID, email.Attempts).
			Update("attempts", email.Attempts+1)
		if claim.Error != nil || claim.RowsAffected == 0 {
			continue
		}

		if err := s.sendEmail(email.Recipient, email.Subject, email.Body); err != nil {
			logrus.WithError(err).WithField("email_id", email.ID).Error("Failed to send email")
			s.db.Model(email).Updates(map[string]interface{}{
				"status":     models.EmailStatusFailed,
				"last_error": err.Error(),
			})
			continue
		}

		now := s.clock.Now()
		s.db.Model(email).Updates(map[string]interface{}{
			"status":  models.EmailStatusSent,
			"sent_at": now,
		})
	}
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPUsername == "" {
		// Email transport not configured; treat as delivered in development.
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("Email sending skipped (SMTP not configured)")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body)

	addr := s.config.Email.SMTPHost + ":" + s.config.Email.SMTPPort
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, []byte(msg))
}
