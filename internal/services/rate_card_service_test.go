// internal/services/rate_card_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

type RateCardTestSuite struct {
	suite.Suite
	db      *gorm.DB
	clock   *clock.Mock
	service *RateCardService
}

func (suite *RateCardTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.clock = clock.NewMock()
	suite.clock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	suite.service = NewRateCardService(suite.db, NewAuditService(suite.db), suite.clock)
}

func (suite *RateCardTestSuite) upsertRequest(baseApr string) *UpsertRateCardRequest {
	return &UpsertRateCardRequest{
		LoanType:              models.LoanTypePersonal,
		Currency:              models.CurrencyEUR,
		MinLoanAmount:         mustDecimal(suite.T(), "1000"),
		MaxLoanAmount:         mustDecimal(suite.T(), "100000"),
		BaseApr:               mustDecimal(suite.T(), baseApr),
		AprAdjustmentRange:    mustDecimal(suite.T(), "2.5"),
		OriginationFeePercent: mustDecimal(suite.T(), "1.0"),
		InsurancePercent:      mustDecimal(suite.T(), "0.5"),
		ProcessingTimeDays:    5,
	}
}

func (suite *RateCardTestSuite) TestCreateFirstCard() {
	bank := createTestBank(suite.T(), suite.db, "Fresh Bank")

	card, err := suite.service.UpsertRateCard(context.Background(), bank.ID, suite.upsertRequest("8.0"))
	suite.Require().NoError(err)
	suite.Nil(card.ValidTo)
	suite.True(card.IsActive())
	suite.WithinDuration(suite.clock.Now(), card.ValidFrom, time.Second)
}

func (suite *RateCardTestSuite) TestUpdateVersionsCard() {
	bank := createTestBank(suite.T(), suite.db, "Versioned Bank")

	first, err := suite.service.UpsertRateCard(context.Background(), bank.ID, suite.upsertRequest("8.0"))
	suite.Require().NoError(err)

	suite.clock.Add(48 * time.Hour)

	second, err := suite.service.UpsertRateCard(context.Background(), bank.ID, suite.upsertRequest("7.5"))
	suite.Require().NoError(err)
	suite.NotEqual(first.ID, second.ID)

	// Exactly one active card per segment; the old version is closed but kept.
	active, err := suite.service.GetActiveRateCards(context.Background(), bank.ID)
	suite.Require().NoError(err)
	suite.Require().Len(active, 1)
	suite.Equal(second.ID, active[0].ID)
	suite.True(active[0].BaseApr.Equal(mustDecimal(suite.T(), "7.5")))

	history, err := suite.service.GetRateCardHistory(context.Background(), bank.ID,
		models.LoanTypePersonal, models.CurrencyEUR)
	suite.Require().NoError(err)
	suite.Require().Len(history, 2)

	var closed models.BankRateCard
	suite.Require().NoError(suite.db.First(&closed, "id = ?", first.ID).Error)
	suite.Require().NotNil(closed.ValidTo)
	suite.False(closed.IsActive())
}

func (suite *RateCardTestSuite) TestSegmentsAreIndependent() {
	bank := createTestBank(suite.T(), suite.db, "Multi Bank")

	_, err := suite.service.UpsertRateCard(context.Background(), bank.ID, suite.upsertRequest("8.0"))
	suite.Require().NoError(err)

	homeReq := suite.upsertRequest("4.5")
	homeReq.LoanType = models.LoanTypeHome
	_, err = suite.service.UpsertRateCard(context.Background(), bank.ID, homeReq)
	suite.Require().NoError(err)

	active, err := suite.service.GetActiveRateCards(context.Background(), bank.ID)
	suite.Require().NoError(err)
	suite.Len(active, 2)
}

func (suite *RateCardTestSuite) TestRejectsInvalidPricing() {
	bank := createTestBank(suite.T(), suite.db, "Picky Bank")

	req := suite.upsertRequest("8.0")
	req.MaxLoanAmount = mustDecimal(suite.T(), "500")

	_, err := suite.service.UpsertRateCard(context.Background(), bank.ID, req)
	suite.Require().Error(err)

	var stateErr *apperrors.InvalidStateError
	suite.Require().ErrorAs(err, &stateErr)
}

func TestRateCardTestSuite(t *testing.T) {
	suite.Run(t, new(RateCardTestSuite))
}
