// internal/services/rate_card_service.go
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

// RateCardService manages versioned bank rate cards. Cards are never updated
// in place: a change closes the current row and inserts a new one, so offers
// already calculated keep pointing at the pricing they were built from.
type RateCardService struct {
	db           *gorm.DB
	auditService *AuditService
	clock        clock.Clock
}

func NewRateCardService(db *gorm.DB, auditService *AuditService, clk clock.Clock) *RateCardService {
	if clk == nil {
		clk = clock.New()
	}
	return &RateCardService{db: db, auditService: auditService, clock: clk}
}

type UpsertRateCardRequest struct {
	LoanType              models.LoanType `json:"loan_type" validate:"required,loan_type"`
	Currency              models.Currency `json:"currency" validate:"required,currency"`
	MinLoanAmount         decimal.Decimal `json:"min_loan_amount" validate:"required"`
	MaxLoanAmount         decimal.Decimal `json:"max_loan_amount" validate:"required"`
	BaseApr               decimal.Decimal `json:"base_apr" validate:"required"`
	AprAdjustmentRange    decimal.Decimal `json:"apr_adjustment_range"`
	OriginationFeePercent decimal.Decimal `json:"origination_fee_percent"`
	InsurancePercent      decimal.Decimal `json:"insurance_percent"`
	ProcessingTimeDays    int             `json:"processing_time_days" validate:"required,min=1"`
}

func (r *UpsertRateCardRequest) validatePricing() error {
	if r.MinLoanAmount.LessThanOrEqual(decimal.Zero) {
		return &apperrors.InvalidStateError{Resource: "rate card", Msg: "min_loan_amount must be positive"}
	}
	if r.MaxLoanAmount.LessThan(r.MinLoanAmount) {
		return &apperrors.InvalidStateError{Resource: "rate card", Msg: "max_loan_amount must be at least min_loan_amount"}
	}
	if r.BaseApr.LessThanOrEqual(decimal.Zero) {
		return &apperrors.InvalidStateError{Resource: "rate card", Msg: "base_apr must be positive"}
	}
	if r.AprAdjustmentRange.IsNegative() || r.OriginationFeePercent.IsNegative() || r.InsurancePercent.IsNegative() {
		return &apperrors.InvalidStateError{Resource: "rate card", Msg: "percentages must not be negative"}
	}
	return nil
}

// UpsertRateCard creates or replaces the active rate card for the bank's
// (loan type, currency) segment. The previous card, if any, is closed at the
// current instant and kept for history.
func (s *RateCardService) UpsertRateCard(ctx context.Context, bankID uuid.UUID, req *UpsertRateCardRequest) (*models.BankRateCard, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.validatePricing(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	card := &models.BankRateCard{
		BankID:                bankID,
		LoanType:              req.LoanType,
		Currency:              req.Currency,
		MinLoanAmount:         req.MinLoanAmount,
		MaxLoanAmount:         req.MaxLoanAmount,
		BaseApr:               req.BaseApr,
		AprAdjustmentRange:    req.AprAdjustmentRange,
		OriginationFeePercent: req.OriginationFeePercent,
		InsurancePercent:      req.InsurancePercent,
		ProcessingTimeDays:    req.ProcessingTimeDays,
		ValidFrom:             now,
	}

	var replaced *models.BankRateCard

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var existing models.BankRateCard
		err := tx.Where("bank_id = ? AND loan_type = ? AND currency = ? AND valid_to IS NULL",
			bankID, req.LoanType, req.Currency).
			First(&existing).Error
		switch {
		case err == nil:
			result := tx.Model(&models.BankRateCard{}).
				Where("id = ? AND valid_to IS NULL", existing.ID).
				Update("valid_to", now)
			if result.Error != nil {
				return fmt.Errorf("failed to close rate card: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("rate card changed concurrently: %w", apperrors.ErrConcurrencyConflict)
			}
			replaced = &existing
		case err == gorm.ErrRecordNotFound:
			// first card for this segment
		default:
			return fmt.Errorf("failed to load rate card: %w", err)
		}

		if err := tx.Create(card).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("rate card changed concurrently: %w", apperrors.ErrConcurrencyConflict)
			}
			return fmt.Errorf("failed to create rate card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replaced != nil {
		s.auditService.LogActionWithValues("BankRateCard", card.ID, models.AuditActionRateCardUpdated,
			models.JSONB{
				"previous_card_id": replaced.ID.String(),
				"base_apr":         replaced.BaseApr.String(),
			},
			models.JSONB{"base_apr": card.BaseApr.String()})
	} else {
		s.auditService.LogActionWithValues("BankRateCard", card.ID, models.AuditActionRateCardCreated,
			nil,
			models.JSONB{
				"loan_type": string(card.LoanType),
				"currency":  string(card.Currency),
				"base_apr":  card.BaseApr.String(),
			})
	}

	logrus.WithFields(logrus.Fields{
		"bank_id":   bankID,
		"loan_type": card.LoanType,
		"currency":  card.Currency,
		"replaced":  replaced != nil,
	}).Info("Rate card upserted")

	return card, nil
}

// GetActiveRateCards returns the bank's currently active cards.
func (s *RateCardService) GetActiveRateCards(ctx context.Context, bankID uuid.UUID) ([]models.BankRateCard, error) {
	var cards []models.BankRateCard
	err := s.db.WithContext(ctx).
		Where("bank_id = ? AND valid_to IS NULL", bankID).
		Order("loan_type, currency").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rate cards: %w", err)
	}
	return cards, nil
}

// GetRateCardHistory returns every version of the bank's cards for a segment,
// newest first.
func (s *RateCardService) GetRateCardHistory(ctx context.Context, bankID uuid.UUID,
	loanType models.LoanType, currency models.Currency) ([]models.BankRateCard, error) {

	var cards []models.BankRateCard
	err := s.db.WithContext(ctx).
		Where("bank_id = ? AND loan_type = ? AND currency = ?", bankID, loanType, currency).
		Order("valid_from DESC").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rate card history: %w", err)
	}
	return cards, nil
}
