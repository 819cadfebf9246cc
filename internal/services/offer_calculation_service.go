// internal/services/offer_calculation_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// Rounding contract for all monetary math: money is rounded half-up to
// 2 decimal places, APR carries 4, the monthly rate carries 6. Keeping the
// scales fixed is what makes recalculation byte-reproducible.
const (
	aprScale         = 4
	moneyScale       = 2
	monthlyRateScale = 6

	// Long-duration loans carry a surcharge of half the configured
	// adjustment range; shorter terms get none.
	longTermThresholdMonths = 120

	calculationType = "rate_card_amortization"
)

// OfferCalculationService computes one offer per lender with an active
// matching rate card. Calculation is a pure function of the application and
// rate card snapshots; every attempt is logged for audit replay.
type OfferCalculationService struct {
	db                *gorm.DB
	config            *config.Config
	auditService      *AuditService
	statusTransitions *StatusTransitionService
	clock             clock.Clock
}

func NewOfferCalculationService(db *gorm.DB, cfg *config.Config, auditService *AuditService,
	statusTransitions *StatusTransitionService, clk clock.Clock) *OfferCalculationService {
	if clk == nil {
		clk = clock.New()
	}
	return &OfferCalculationService{
		db:                db,
		config:            cfg,
		auditService:      auditService,
		statusTransitions: statusTransitions,
		clock:             clk,
	}
}

type calculationResult struct {
	FinalApr       decimal.Decimal
	MonthlyPayment decimal.Decimal
	TotalCost      decimal.Decimal
	OriginationFee decimal.Decimal
	InsuranceCost  decimal.Decimal
}

// CalculateOffers computes an offer for every active bank with a matching
// rate card. A bank without an active matching card is silently skipped; a
// failure computing one bank's offer is logged and does not abort the others.
func (s *OfferCalculationService) CalculateOffers(ctx context.Context, applicationID uuid.UUID) ([]uuid.UUID, error) {
	logrus.WithField("application_id", applicationID).Info("Starting offer calculation")

	var application models.Application
	if err := s.db.WithContext(ctx).First(&application, "id = ?", applicationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("application %s: %w", applicationID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}

	var banks []models.Bank
	if err := s.db.WithContext(ctx).Where("status = ?", models.BankStatusActive).Find(&banks).Error; err != nil {
		return nil, fmt.Errorf("failed to load active banks: %w", err)
	}

	logrus.WithField("bank_count", len(banks)).Info("Found active banks for offer calculation")

	perBankTimeout := time.Duration(s.config.Offer.CalculationTimeout) * time.Second
	offerIDs := make([]uuid.UUID, 0, len(banks))

	for i := range banks {
		bank := &banks[i]

		bankCtx, cancel := context.WithTimeout(ctx, perBankTimeout)
		offer, err := s.calculateOfferForBank(bankCtx, &application, bank)
		cancel()

		if err != nil {
			// Log error but continue with other banks
			logrus.WithError(err).WithFields(logrus.Fields{
				"application_id": applicationID,
				"bank_id":        bank.ID,
			}).Error("Failed to calculate offer for bank")
			continue
		}
		if offer == nil {
			continue // no active matching rate card
		}

		offerIDs = append(offerIDs, offer.ID)
	}

	if len(offerIDs) > 0 && application.Status == models.ApplicationStatusUnderReview {
		if err := s.statusTransitions.RecordTransition(s.db, &application,
			models.ApplicationStatusOffersAvailable, nil, "offers calculated"); err != nil {
			logrus.WithError(err).WithField("application_id", applicationID).
				Error("Failed to mark offers available")
		}
	}

	logrus.WithFields(logrus.Fields{
		"application_id": applicationID,
		"offer_count":    len(offerIDs),
	}).Info("Completed offer calculation")

	return offerIDs, nil
}

// calculateOfferForBank returns nil, nil when the bank has no active rate
// card matching the application's loan type, currency and amount range.
func (s *OfferCalculationService) calculateOfferForBank(ctx context.Context,
	application *models.Application, bank *models.Bank) (*models.Offer, error) {

	var rateCard models.BankRateCard
	err := s.db.WithContext(ctx).
		Where("bank_id = ? AND loan_type = ? AND currency = ? AND valid_to IS NULL",
			bank.ID, application.LoanType, application.Currency).
		First(&rateCard).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			logrus.WithFields(logrus.Fields{
				"bank_id":   bank.ID,
				"loan_type": application.LoanType,
				"currency":  application.Currency,
			}).Warn("No active rate card found for bank, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load rate card: %w", err)
	}

	if application.LoanAmount.LessThan(rateCard.MinLoanAmount) ||
		application.LoanAmount.GreaterThan(rateCard.MaxLoanAmount) {
		logrus.WithFields(logrus.Fields{
			"bank_id":     bank.ID,
			"loan_amount": application.LoanAmount,
		}).Warn("Loan amount outside rate card range, skipping")
		return nil, nil
	}

	result := calculateAmortization(
		application.LoanAmount,
		application.TermMonths,
		rateCard.BaseApr,
		rateCard.AprAdjustmentRange,
		rateCard.OriginationFeePercent,
		rateCard.InsurancePercent,
	)

	now := s.clock.Now()
	validityHours := s.config.Offer.ValidityPeriodHours

	offer := &models.Offer{
		ApplicationID:      application.ID,
		BankID:             bank.ID,
		OfferStatus:        models.OfferStatusCalculated,
		Apr:                result.FinalApr,
		MonthlyPayment:     result.MonthlyPayment,
		TotalCost:          result.TotalCost,
		OriginationFee:     result.OriginationFee,
		InsuranceCost:      result.InsuranceCost,
		ProcessingTimeDays: rateCard.ProcessingTimeDays,
		ValidityPeriodDays: validityHours / 24,
		ExpiresAt:          now.Add(time.Duration(validityHours) * time.Hour),
	}

	if err := s.db.WithContext(ctx).Create(offer).Error; err != nil {
		return nil, fmt.Errorf("failed to save offer: %w", err)
	}

	s.logCalculation(ctx, application, &rateCard, result)

	s.auditService.LogActionWithValues("Offer", offer.ID, models.AuditActionOfferCalculated,
		nil, models.JSONB{
			"application_id":  application.ID.String(),
			"bank_id":         bank.ID.String(),
			"apr":             result.FinalApr.String(),
			"monthly_payment": result.MonthlyPayment.String(),
		})

	logrus.WithFields(logrus.Fields{
		"offer_id":       offer.ID,
		"bank_id":        bank.ID,
		"application_id": application.ID,
	}).Info("Created offer")

	return offer, nil
}

// calculateAmortization resolves the final APR and derives the fixed-rate
// amortization figures. M = P * [r(1+r)^n] / [(1+r)^n - 1].
func calculateAmortization(principal decimal.Decimal, months int,
	baseApr, aprAdjustmentRange, originationFeePercent, insurancePercent decimal.Decimal) calculationResult {

	hundred := decimal.NewFromInt(100)
	one := decimal.NewFromInt(1)

	adjustment := decimal.Zero
	if months > longTermThresholdMonths {
		adjustment = aprAdjustmentRange.DivRound(decimal.NewFromInt(2), aprScale)
	}
	finalApr := baseApr.Add(adjustment)

	monthlyRate := finalApr.
		DivRound(hundred, monthlyRateScale).
		DivRound(decimal.NewFromInt(12), monthlyRateScale)

	termDec := decimal.NewFromInt(int64(months))

	var monthlyPayment decimal.Decimal
	if monthlyRate.IsZero() {
		monthlyPayment = principal.DivRound(termDec, moneyScale)
	} else {
		onePlusRatePowN := one.Add(monthlyRate).Pow(termDec)
		numerator := principal.Mul(monthlyRate).Mul(onePlusRatePowN)
		denominator := onePlusRatePowN.Sub(one)
		monthlyPayment = numerator.DivRound(denominator, moneyScale)
	}

	totalCost := monthlyPayment.Mul(termDec).Sub(principal).Round(moneyScale)

	originationFee := principal.Mul(originationFeePercent).DivRound(hundred, moneyScale)

	insuranceCost := decimal.Zero.Round(moneyScale)
	if insurancePercent.GreaterThan(decimal.Zero) {
		insuranceCost = principal.Mul(insurancePercent).DivRound(hundred, moneyScale)
	}

	return calculationResult{
		FinalApr:       finalApr,
		MonthlyPayment: monthlyPayment,
		TotalCost:      totalCost,
		OriginationFee: originationFee,
		InsuranceCost:  insuranceCost,
	}
}

// logCalculation appends the input/output snapshot for this attempt. A failed
// log write is not allowed to fail the calculation.
func (s *OfferCalculationService) logCalculation(ctx context.Context,
	application *models.Application, rateCard *models.BankRateCard, result calculationResult) {

	entry := &models.OfferCalculationLog{
		ApplicationID:   application.ID,
		BankID:          rateCard.BankID,
		CalculationType: calculationType,
		Timestamp:       s.clock.Now(),
		InputParameters: models.JSONB{
			"loan_amount":          application.LoanAmount.String(),
			"term_months":          application.TermMonths,
			"loan_type":            application.LoanType,
			"currency":             application.Currency,
			"rate_card_id":         rateCard.ID.String(),
			"base_apr":             rateCard.BaseApr.String(),
			"apr_adjustment_range": rateCard.AprAdjustmentRange.String(),
		},
		CalculatedValues: models.JSONB{
			"final_apr":       result.FinalApr.String(),
			"monthly_payment": result.MonthlyPayment.String(),
			"total_cost":      result.TotalCost.String(),
			"origination_fee": result.OriginationFee.String(),
			"insurance_cost":  result.InsuranceCost.String(),
		},
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"application_id": application.ID,
			"bank_id":        rateCard.BankID,
		}).Error("Failed to write calculation log")
	}
}
