// internal/services/testutil_test.go
package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/database"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the shared in-memory database alive and
	// avoids sqlite write lock errors under concurrent tests.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.RunMigrations(db))

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT: config.JWTConfig{
			SecretKey:      "test-secret",
			AccessTokenTTL: 1,
		},
		Offer: config.OfferConfig{
			ValidityPeriodHours: 24,
			WarningWindowHours:  24,
			CalculationTimeout:  10,
		},
		Market: config.MarketConfig{
			MinimumBanks: 3,
		},
		Scheduler: config.SchedulerConfig{
			ExpirationSpec: "0 0 * * *",
			WarningSpec:    "0 * * * *",
			OutboxInterval: 1,
		},
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func createTestBank(t *testing.T, db *gorm.DB, name string) *models.Bank {
	t.Helper()
	bank := &models.Bank{Name: name, Status: models.BankStatusActive}
	require.NoError(t, db.Create(bank).Error)
	return bank
}

func createTestBorrower(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:    email,
		FullName: "Test Borrower",
		UserType: models.UserTypeBorrower,
		IsActive: true,
	}
	require.NoError(t, user.SetPassword("Sup3rSecret!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestApplication(t *testing.T, db *gorm.DB, borrowerID uuid.UUID,
	status models.ApplicationStatus, amount string, termMonths int) *models.Application {
	t.Helper()
	application := &models.Application{
		BorrowerID: borrowerID,
		LoanType:   models.LoanTypePersonal,
		Currency:   models.CurrencyEUR,
		LoanAmount: mustDecimal(t, amount),
		TermMonths: termMonths,
		Status:     status,
	}
	require.NoError(t, db.Create(application).Error)
	return application
}

type rateCardSpec struct {
	baseApr            string
	aprAdjustmentRange string
	originationFee     string
	insurance          string
	minAmount          string
	maxAmount          string
	processingDays     int
	loanType           models.LoanType
	currency           models.Currency
}

func createTestRateCard(t *testing.T, db *gorm.DB, bankID uuid.UUID, spec rateCardSpec) *models.BankRateCard {
	t.Helper()
	if spec.minAmount == "" {
		spec.minAmount = "1000"
	}
	if spec.maxAmount == "" {
		spec.maxAmount = "100000"
	}
	if spec.loanType == "" {
		spec.loanType = models.LoanTypePersonal
	}
	if spec.currency == "" {
		spec.currency = models.CurrencyEUR
	}
	if spec.processingDays == 0 {
		spec.processingDays = 5
	}
	if spec.aprAdjustmentRange == "" {
		spec.aprAdjustmentRange = "0"
	}
	if spec.originationFee == "" {
		spec.originationFee = "0"
	}
	if spec.insurance == "" {
		spec.insurance = "0"
	}

	card := &models.BankRateCard{
		BankID:                bankID,
		LoanType:              spec.loanType,
		Currency:              spec.currency,
		MinLoanAmount:         mustDecimal(t, spec.minAmount),
		MaxLoanAmount:         mustDecimal(t, spec.maxAmount),
		BaseApr:               mustDecimal(t, spec.baseApr),
		AprAdjustmentRange:    mustDecimal(t, spec.aprAdjustmentRange),
		OriginationFeePercent: mustDecimal(t, spec.originationFee),
		InsurancePercent:      mustDecimal(t, spec.insurance),
		ProcessingTimeDays:    spec.processingDays,
		ValidFrom:             time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(card).Error)
	return card
}
