// internal/services/offer_calculation_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/models"
)

type OfferCalculationTestSuite struct {
	suite.Suite
	db      *gorm.DB
	clock   *clock.Mock
	service *OfferCalculationService
}

func (suite *OfferCalculationTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.clock = clock.NewMock()
	suite.clock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	cfg := newTestConfig()
	auditService := NewAuditService(suite.db)
	statusTransitions := NewStatusTransitionService(suite.db, auditService)
	suite.service = NewOfferCalculationService(suite.db, cfg, auditService, statusTransitions, suite.clock)
}

func (suite *OfferCalculationTestSuite) TestStandardAmortization() {
	bank := createTestBank(suite.T(), suite.db, "Alpine Bank")
	createTestRateCard(suite.T(), suite.db, bank.ID, rateCardSpec{
		baseApr:            "8.5",
		aprAdjustmentRange: "2.5",
		originationFee:     "2.5",
		insurance:          "0.5",
	})
	borrower := createTestBorrower(suite.T(), suite.db, "calc1@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusUnderReview, "25000", 36)

	offerIDs, err := suite.service.CalculateOffers(context.Background(), application.ID)
	suite.Require().NoError(err)
	suite.Require().Len(offerIDs, 1)

	var offer models.Offer
	suite.Require().NoError(suite.db.First(&offer, "id = ?", offerIDs[0]).Error)

	// 36 months is below the long-term threshold, so no APR adjustment.
	suite.True(offer.Apr.Equal(mustDecimal(suite.T(), "8.5")), "apr = %s", offer.Apr)

	expectedPayment := mustDecimal(suite.T(), "788.67")
	diff := offer.MonthlyPayment.Sub(expectedPayment).Abs()
	suite.True(diff.LessThan(mustDecimal(suite.T(), "1.00")),
		"monthly payment %s not within 1.00 of %s", offer.MonthlyPayment, expectedPayment)

	suite.True(offer.OriginationFee.Equal(mustDecimal(suite.T(), "625.00")), "fee = %s", offer.OriginationFee)
	suite.True(offer.InsuranceCost.Equal(mustDecimal(suite.T(), "125.00")), "insurance = %s", offer.InsuranceCost)

	// Total cost is what the borrower pays above principal.
	expectedTotal := offer.MonthlyPayment.Mul(mustDecimal(suite.T(), "36")).Sub(mustDecimal(suite.T(), "25000"))
	suite.True(offer.TotalCost.Equal(expectedTotal.Round(2)), "total cost = %s", offer.TotalCost)

	suite.Equal(models.OfferStatusCalculated, offer.OfferStatus)
	suite.WithinDuration(suite.clock.Now().Add(24*time.Hour), offer.ExpiresAt, time.Second)
}

func (suite *OfferCalculationTestSuite) TestLongTermAprSurcharge() {
	bank := createTestBank(suite.T(), suite.db, "Summit Bank")
	createTestRateCard(suite.T(), suite.db, bank.ID, rateCardSpec{
		baseApr:            "6.0",
		aprAdjustmentRange: "2.5",
		maxAmount:          "500000",
	})
	borrower := createTestBorrower(suite.T(), suite.db, "calc2@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusUnderReview, "100000", 180)

	offerIDs, err := suite.service.CalculateOffers(context.Background(), application.ID)
	suite.Require().NoError(err)
	suite.Require().Len(offerIDs, 1)

	var offer models.Offer
	suite.Require().NoError(suite.db.First(&offer, "id = ?", offerIDs[0]).Error)

	// Terms beyond 120 months carry half the adjustment range on top of
	// the base APR: 6.0 + 2.5/2 = 7.25.
	suite.True(offer.Apr.Equal(mustDecimal(suite.T(), "7.25")), "apr = %s", offer.Apr)
}

func (suite *OfferCalculationTestSuite) TestDeterministicRecalculation() {
	bank := createTestBank(suite.T(), suite.db, "Delta Bank")
	createTestRateCard(suite.T(), suite.db, bank.ID, rateCardSpec{
		baseApr:        "8.5",
		originationFee: "2.5",
		insurance:      "0.5",
	})
	borrower := createTestBorrower(suite.T(), suite.db, "calc3@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusUnderReview, "25000", 36)

	firstIDs, err := suite.service.CalculateOffers(context.Background(), application.ID)
	suite.Require().NoError(err)
	suite.Require().Len(firstIDs, 1)

	var first models.Offer
	suite.Require().NoError(suite.db.First(&first, "id = ?", firstIDs[0]).Error)

	// Wipe and recalculate from the same inputs.
	suite.Require().NoError(suite.db.Delete(&models.Offer{}, "application_id = ?", application.ID).Error)

	secondIDs, err := suite.service.CalculateOffers(context.Background(), application.ID)
	suite.Require().NoError(err)
	suite.Require().Len(secondIDs, 1)

	var second models.Offer
	suite.Require().NoError(suite.db.First(&second, "id = ?", secondIDs[0]).Error)

	suite.Equal(first.Apr.String(), second.Apr.String())
	suite.Equal(first.MonthlyPayment.String(), second.MonthlyPayment.String())
	suite.Equal(first.TotalCost.String(), second.TotalCost.String())
	suite.Equal(first.OriginationFee.String(), second.OriginationFee.String())
	suite.Equal(first.InsuranceCost.String(), second.InsuranceCost.String())
}

func (suite *OfferCalculationTestSuite) TestSkipsBanksWithoutMatchingCard() {
	withCard := createTestBank(suite.T(), suite.db, "Card Bank")
	createTestRateCard(suite.T(), suite.db, withCard.ID, rateCardSpec{baseApr: "7.0"})

	// Active bank with no card at all.
	createTestBank(suite.T(), suite.db, "No Card Bank")

	// Active bank whose card does not cover the amount.
	outOfRange := createTestBank(suite.T(), suite.db, "Narrow Bank")
	createTestRateCard(suite.T(), suite.db, outOfRange.ID, rateCardSpec{
		baseApr:   "7.0",
		minAmount: "50000",
		maxAmount: "90000",
	})

	// Suspended bank with a matching card.
	suspended := &models.Bank{Name: "Suspended Bank", Status: models.BankStatusSuspended}
	suite.Require().NoError(suite.db.Create(suspended).Error)
	createTestRateCard(suite.T(), suite.db, suspended.ID, rateCardSpec{baseApr: "7.0"})

	borrower := createTestBorrower(suite.T(), suite.db, "calc4@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusUnderReview, "25000", 36)

	offerIDs, err := suite.service.CalculateOffers(context.Background(), application.ID)
	suite.Require().NoError(err)
	suite.Require().Len(offerIDs, 1)

	var offer models.Offer
	suite.Require().NoError(suite.db.First(&offer, "id = ?", offerIDs[0]).Error)
	suite.Equal(withCard.ID, offer.BankID)
}

func (suite *OfferCalculationTestSuite) TestPromotesApplicationToOffersAvailable() {
	bank := createTestBank(suite.T(), suite.db, "Promo Bank")
	createTestRateCard(suite.T(), suite.db, bank.ID, rateCardSpec{baseApr: "7.0"})
	borrower := createTestBorrower(suite.T(), suite.db, "calc5@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusUnderReview, "25000", 36)

	_, err := suite.service.CalculateOffers(context.Background(), application.ID)
	suite.Require().NoError(err)

	var reloaded models.Application
	suite.Require().NoError(suite.db.First(&reloaded, "id = ?", application.ID).Error)
	suite.Equal(models.ApplicationStatusOffersAvailable, reloaded.Status)

	var history []models.ApplicationStatusHistory
	suite.Require().NoError(suite.db.Where("application_id = ?", application.ID).Find(&history).Error)
	suite.Require().Len(history, 1)
	suite.Equal(models.ApplicationStatusUnderReview, history[0].OldStatus)
	suite.Equal(models.ApplicationStatusOffersAvailable, history[0].NewStatus)
}

func (suite *OfferCalculationTestSuite) TestWritesCalculationLog() {
	bank := createTestBank(suite.T(), suite.db, "Log Bank")
	createTestRateCard(suite.T(), suite.db, bank.ID, rateCardSpec{baseApr: "7.0"})
	borrower := createTestBorrower(suite.T(), suite.db, "calc6@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusUnderReview, "25000", 36)

	_, err := suite.service.CalculateOffers(context.Background(), application.ID)
	suite.Require().NoError(err)

	var logs []models.OfferCalculationLog
	suite.Require().NoError(suite.db.Where("application_id = ?", application.ID).Find(&logs).Error)
	suite.Require().Len(logs, 1)
	suite.Equal(bank.ID, logs[0].BankID)
	suite.Equal("rate_card_amortization", logs[0].CalculationType)
	suite.NotEmpty(logs[0].InputParameters)
	suite.NotEmpty(logs[0].CalculatedValues)
}

func (suite *OfferCalculationTestSuite) TestZeroRateFallsBackToLinearPayment() {
	result := calculateAmortization(
		mustDecimal(suite.T(), "12000"), 12,
		mustDecimal(suite.T(), "0"), mustDecimal(suite.T(), "0"),
		mustDecimal(suite.T(), "0"), mustDecimal(suite.T(), "0"))

	suite.True(result.MonthlyPayment.Equal(mustDecimal(suite.T(), "1000.00")))
	suite.True(result.TotalCost.Equal(mustDecimal(suite.T(), "0.00")))
}

func TestOfferCalculationTestSuite(t *testing.T) {
	suite.Run(t, new(OfferCalculationTestSuite))
}
