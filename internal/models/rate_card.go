// internal/models/rate_card.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankRateCard is a versioned pricing policy. At most one row per
// (bank, loan type, currency) has ValidTo = NULL; updates close the active
// row and insert a new one, they never mutate in place.
type BankRateCard struct {
	BaseModel
	BankID                uuid.UUID       `json:"bank_id" gorm:"type:uuid;not null;index"`
	LoanType              LoanType        `json:"loan_type" gorm:"type:varchar(30);not null;index"`
	Currency              Currency        `json:"currency" gorm:"type:varchar(3);not null;index"`
	MinLoanAmount         decimal.Decimal `json:"min_loan_amount" gorm:"type:decimal(12,2);not null"`
	MaxLoanAmount         decimal.Decimal `json:"max_loan_amount" gorm:"type:decimal(12,2);not null"`
	BaseApr               decimal.Decimal `json:"base_apr" gorm:"type:decimal(7,4);not null"`
	AprAdjustmentRange    decimal.Decimal `json:"apr_adjustment_range" gorm:"type:decimal(7,4);not null"`
	OriginationFeePercent decimal.Decimal `json:"origination_fee_percent" gorm:"type:decimal(5,2);not null"`
	InsurancePercent      decimal.Decimal `json:"insurance_percent" gorm:"type:decimal(5,2)"`
	ProcessingTimeDays    int             `json:"processing_time_days" gorm:"not null"`
	ValidFrom             time.Time       `json:"valid_from"`
	ValidTo               *time.Time      `json:"valid_to" gorm:"index"`

	// Relationships
	Bank *Bank `json:"bank,omitempty" gorm:"foreignKey:BankID"`
}

// IsActive reports whether this is the currently effective version.
func (rc *BankRateCard) IsActive() bool {
	return rc.ValidTo == nil
}
