// internal/services/application_service_test.go
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

type ApplicationServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	clock   *clock.Mock
	service *ApplicationService
}

func (suite *ApplicationServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.clock = clock.NewMock()
	suite.clock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	auditService := NewAuditService(suite.db)
	notifications := NewNotificationService(suite.db, newTestConfig(), suite.clock)
	statusTransitions := NewStatusTransitionService(suite.db, auditService)
	suite.service = NewApplicationService(suite.db, auditService, notifications, statusTransitions, suite.clock)
}

func (suite *ApplicationServiceTestSuite) TestCreateAndSubmit() {
	borrower := createTestBorrower(suite.T(), suite.db, "app1@example.com")

	application, err := suite.service.CreateApplication(context.Background(), borrower.ID,
		&CreateApplicationRequest{
			LoanType:   models.LoanTypePersonal,
			Currency:   models.CurrencyEUR,
			LoanAmount: mustDecimal(suite.T(), "25000"),
			TermMonths: 36,
		})
	suite.Require().NoError(err)
	suite.Equal(models.ApplicationStatusDraft, application.Status)

	submitted, err := suite.service.SubmitApplication(context.Background(), borrower.ID, application.ID)
	suite.Require().NoError(err)
	suite.Equal(models.ApplicationStatusSubmitted, submitted.Status)
	suite.Require().NotNil(submitted.SubmittedAt)
	suite.WithinDuration(suite.clock.Now(), *submitted.SubmittedAt, time.Second)

	// Submitting twice violates the transition table.
	_, err = suite.service.SubmitApplication(context.Background(), borrower.ID, application.ID)
	var transitionErr *apperrors.InvalidTransitionError
	suite.Require().ErrorAs(err, &transitionErr)
}

func (suite *ApplicationServiceTestSuite) TestCreateRejectsNonPositiveAmount() {
	borrower := createTestBorrower(suite.T(), suite.db, "app2@example.com")

	_, err := suite.service.CreateApplication(context.Background(), borrower.ID,
		&CreateApplicationRequest{
			LoanType:   models.LoanTypePersonal,
			Currency:   models.CurrencyEUR,
			LoanAmount: mustDecimal(suite.T(), "-100"),
			TermMonths: 36,
		})
	suite.Require().Error(err)
}

func (suite *ApplicationServiceTestSuite) TestStartReview() {
	borrower := createTestBorrower(suite.T(), suite.db, "app3@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusSubmitted, "25000", 36)

	reviewed, err := suite.service.StartReview(context.Background(), application.ID, nil)
	suite.Require().NoError(err)
	suite.Equal(models.ApplicationStatusUnderReview, reviewed.Status)
}

func (suite *ApplicationServiceTestSuite) TestWithdrawFromOffersAvailable() {
	bank := createTestBank(suite.T(), suite.db, "Offer Bank")
	borrower := createTestBorrower(suite.T(), suite.db, "app4@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusOffersAvailable, "25000", 36)

	offer := &models.Offer{
		ApplicationID:  application.ID,
		BankID:         bank.ID,
		OfferStatus:    models.OfferStatusSubmitted,
		Apr:            mustDecimal(suite.T(), "8.5"),
		MonthlyPayment: mustDecimal(suite.T(), "789.19"),
		TotalCost:      mustDecimal(suite.T(), "3410.84"),
		OriginationFee: mustDecimal(suite.T(), "625.00"),
		InsuranceCost:  mustDecimal(suite.T(), "125.00"),
		ExpiresAt:      suite.clock.Now().Add(24 * time.Hour),
	}
	suite.Require().NoError(suite.db.Create(offer).Error)

	withdrawn, err := suite.service.WithdrawApplication(context.Background(),
		borrower.ID, application.ID, "found financing elsewhere")
	suite.Require().NoError(err)
	suite.Equal(models.ApplicationStatusWithdrawn, withdrawn.Status)
	suite.Require().NotNil(withdrawn.WithdrawnAt)
	suite.Equal("found financing elsewhere", withdrawn.WithdrawalReason)

	// Live offers follow the application out.
	var reloadedOffer models.Offer
	suite.Require().NoError(suite.db.First(&reloadedOffer, "id = ?", offer.ID).Error)
	suite.Equal(models.OfferStatusWithdrawn, reloadedOffer.OfferStatus)

	// Withdrawal is recorded in the history even though it bypasses the
	// transition table.
	var history []models.ApplicationStatusHistory
	suite.Require().NoError(suite.db.Where("application_id = ?", application.ID).Find(&history).Error)
	suite.Require().Len(history, 1)
	suite.Equal(models.ApplicationStatusWithdrawn, history[0].NewStatus)
}

func (suite *ApplicationServiceTestSuite) TestWithdrawBlockedAfterAcceptance() {
	borrower := createTestBorrower(suite.T(), suite.db, "app5@example.com")
	application := createTestApplication(suite.T(), suite.db, borrower.ID,
		models.ApplicationStatusAccepted, "25000", 36)

	_, err := suite.service.WithdrawApplication(context.Background(),
		borrower.ID, application.ID, "too late")
	suite.Require().Error(err)

	var stateErr *apperrors.InvalidStateError
	suite.Require().ErrorAs(err, &stateErr)
}

func (suite *ApplicationServiceTestSuite) TestOwnershipEnforced() {
	owner := createTestBorrower(suite.T(), suite.db, "app6@example.com")
	intruder := createTestBorrower(suite.T(), suite.db, "app7@example.com")
	application := createTestApplication(suite.T(), suite.db, owner.ID,
		models.ApplicationStatusDraft, "25000", 36)

	_, err := suite.service.GetApplication(context.Background(), intruder.ID, application.ID)
	suite.Require().ErrorIs(err, apperrors.ErrUnauthorized)

	_, err = suite.service.SubmitApplication(context.Background(), intruder.ID, application.ID)
	suite.Require().ErrorIs(err, apperrors.ErrUnauthorized)

	_, err = suite.service.WithdrawApplication(context.Background(), intruder.ID, application.ID, "")
	suite.Require().ErrorIs(err, apperrors.ErrUnauthorized)
}

func TestApplicationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ApplicationServiceTestSuite))
}
