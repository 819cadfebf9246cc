// internal/services/offer_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

type OfferServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	clock   *clock.Mock
	service *OfferService
}

func (suite *OfferServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.clock = clock.NewMock()
	suite.clock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	cfg := newTestConfig()
	auditService := NewAuditService(suite.db)
	notifications := NewNotificationService(suite.db, cfg, suite.clock)
	suite.service = NewOfferService(suite.db, cfg, auditService, notifications, suite.clock)
}

func (suite *OfferServiceTestSuite) createOffer(applicationID, bankID uuid.UUID,
	status models.OfferStatus, expiresAt time.Time) *models.Offer {
	offer := &models.Offer{
		ApplicationID:  applicationID,
		BankID:         bankID,
		OfferStatus:    status,
		Apr:            mustDecimal(suite.T(), "8.5"),
		MonthlyPayment: mustDecimal(suite.T(), "789.19"),
		TotalCost:      mustDecimal(suite.T(), "3410.84"),
		OriginationFee: mustDecimal(suite.T(), "625.00"),
		InsuranceCost:  mustDecimal(suite.T(), "125.00"),
		ExpiresAt:      expiresAt,
	}
	require.NoError(suite.T(), suite.db.Create(offer).Error)
	return offer
}

func (suite *OfferServiceTestSuite) TestSubmitRestartsValidityWindow() {
	bank := createTestBank(suite.T(), suite.db, "Submit Bank")
	borrower := createTestBorrower(suite.T(), suite.db, "off1@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusOffersAvailable, "25000", 36)

	// Calculated an hour ago, already warned once.
	offer := suite.createOffer(application.ID, bank.ID, models.OfferStatusCalculated,
		suite.clock.Now().Add(23*time.Hour))
	suite.Require().NoError(suite.db.Model(offer).Update("notified", true).Error)

	suite.clock.Add(2 * time.Hour)

	submitted, err := suite.service.SubmitOffer(context.Background(), bank.ID, offer.ID, nil)
	suite.Require().NoError(err)
	suite.Equal(models.OfferStatusSubmitted, submitted.OfferStatus)
	suite.Require().NotNil(submitted.OfferSubmittedAt)
	suite.WithinDuration(suite.clock.Now().Add(24*time.Hour), submitted.ExpiresAt, time.Second)
	suite.False(submitted.Notified)
}

func (suite *OfferServiceTestSuite) TestSubmitOnlyFromCalculated() {
	bank := createTestBank(suite.T(), suite.db, "Strict Submit Bank")
	borrower := createTestBorrower(suite.T(), suite.db, "off2@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusOffersAvailable, "25000", 36)
	offer := suite.createOffer(application.ID, bank.ID, models.OfferStatusAccepted,
		suite.clock.Now().Add(24*time.Hour))

	_, err := suite.service.SubmitOffer(context.Background(), bank.ID, offer.ID, nil)
	suite.Require().Error(err)

	var stateErr *apperrors.InvalidStateError
	suite.Require().ErrorAs(err, &stateErr)
}

func (suite *OfferServiceTestSuite) TestWithdrawLiveOffer() {
	bank := createTestBank(suite.T(), suite.db, "Withdraw Bank")
	borrower := createTestBorrower(suite.T(), suite.db, "off3@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusOffersAvailable, "25000", 36)
	offer := suite.createOffer(application.ID, bank.ID, models.OfferStatusSubmitted,
		suite.clock.Now().Add(24*time.Hour))

	withdrawn, err := suite.service.WithdrawOffer(context.Background(), bank.ID, offer.ID, nil)
	suite.Require().NoError(err)
	suite.Equal(models.OfferStatusWithdrawn, withdrawn.OfferStatus)
}

func (suite *OfferServiceTestSuite) TestCannotWithdrawAcceptedOffer() {
	bank := createTestBank(suite.T(), suite.db, "Bound Bank")
	borrower := createTestBorrower(suite.T(), suite.db, "off4@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusAccepted, "25000", 36)
	offer := suite.createOffer(application.ID, bank.ID, models.OfferStatusAccepted,
		suite.clock.Now().Add(24*time.Hour))

	_, err := suite.service.WithdrawOffer(context.Background(), bank.ID, offer.ID, nil)
	suite.Require().Error(err)

	var stateErr *apperrors.InvalidStateError
	suite.Require().ErrorAs(err, &stateErr)

	var reloaded models.Offer
	suite.Require().NoError(suite.db.First(&reloaded, "id = ?", offer.ID).Error)
	suite.Equal(models.OfferStatusAccepted, reloaded.OfferStatus)
}

func (suite *OfferServiceTestSuite) TestBankOwnershipEnforced() {
	owner := createTestBank(suite.T(), suite.db, "Owner Bank")
	other := createTestBank(suite.T(), suite.db, "Other Bank")
	borrower := createTestBorrower(suite.T(), suite.db, "off5@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusOffersAvailable, "25000", 36)
	offer := suite.createOffer(application.ID, owner.ID, models.OfferStatusCalculated,
		suite.clock.Now().Add(24*time.Hour))

	_, err := suite.service.SubmitOffer(context.Background(), other.ID, offer.ID, nil)
	suite.Require().ErrorIs(err, apperrors.ErrUnauthorized)
}

func (suite *OfferServiceTestSuite) TestBorrowerOffersSortedByApr() {
	bankA := createTestBank(suite.T(), suite.db, "Cheap Bank")
	bankB := createTestBank(suite.T(), suite.db, "Pricey Bank")
	borrower := createTestBorrower(suite.T(), suite.db, "off6@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusOffersAvailable, "25000", 36)

	expensive := suite.createOffer(application.ID, bankB.ID, models.OfferStatusCalculated,
		suite.clock.Now().Add(24*time.Hour))
	suite.Require().NoError(suite.db.Model(expensive).Update("apr", "11.2").Error)
	cheap := suite.createOffer(application.ID, bankA.ID, models.OfferStatusCalculated,
		suite.clock.Now().Add(24*time.Hour))
	suite.Require().NoError(suite.db.Model(cheap).Update("apr", "6.9").Error)

	offers, err := suite.service.GetOffersForApplication(context.Background(), borrower.ID, application.ID)
	suite.Require().NoError(err)
	suite.Require().Len(offers, 2)
	suite.Equal(cheap.ID, offers[0].ID)
	suite.Equal(expensive.ID, offers[1].ID)
}

func TestOfferServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OfferServiceTestSuite))
}
