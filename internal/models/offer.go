// internal/models/offer.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Offer is one lender's quote for one application. Offers are never
// physically deleted; terminal outcomes are expressed through OfferStatus.
// A partial unique index (see database.RunMigrations) guarantees at most one
// accepted offer per application.
type Offer struct {
	BaseModel
	ApplicationID      uuid.UUID       `json:"application_id" gorm:"type:uuid;not null;index"`
	BankID             uuid.UUID       `json:"bank_id" gorm:"type:uuid;not null;index"`
	OfferStatus        OfferStatus     `json:"offer_status" gorm:"type:varchar(30);default:'calculated';index"`
	Apr                decimal.Decimal `json:"apr" gorm:"type:decimal(7,4);not null"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment" gorm:"type:decimal(12,2);not null"`
	TotalCost          decimal.Decimal `json:"total_cost" gorm:"type:decimal(12,2);not null"`
	OriginationFee     decimal.Decimal `json:"origination_fee" gorm:"type:decimal(12,2);not null"`
	InsuranceCost      decimal.Decimal `json:"insurance_cost" gorm:"type:decimal(12,2);not null"`
	ProcessingTimeDays int             `json:"processing_time_days"`
	ValidityPeriodDays int             `json:"validity_period_days"`
	ExpiresAt          time.Time       `json:"expires_at" gorm:"index"`
	OfferSubmittedAt   *time.Time      `json:"offer_submitted_at"`
	BorrowerSelectedAt *time.Time      `json:"borrower_selected_at"`
	Notified           bool            `json:"notified" gorm:"default:false;index"`

	// Relationships
	Application *Application `json:"application,omitempty" gorm:"foreignKey:ApplicationID"`
	Bank        *Bank        `json:"bank,omitempty" gorm:"foreignKey:BankID"`
}

// IsExpired reports whether the offer is past its expiry at the given instant.
func (o *Offer) IsExpired(now time.Time) bool {
	return o.ExpiresAt.Before(now)
}

// OfferCalculationLog is append-only; one row per calculation attempt. The
// input and output snapshots make calculations replayable for audit.
type OfferCalculationLog struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ApplicationID    uuid.UUID `json:"application_id" gorm:"type:uuid;not null;index"`
	BankID           uuid.UUID `json:"bank_id" gorm:"type:uuid;not null;index"`
	CalculationType  string    `json:"calculation_type" gorm:"type:varchar(40);not null"`
	InputParameters  JSONB     `json:"input_parameters" gorm:"type:jsonb"`
	CalculatedValues JSONB     `json:"calculated_values" gorm:"type:jsonb"`
	Timestamp        time.Time `json:"timestamp"`
	CreatedAt        time.Time `json:"created_at"`
}

func (l *OfferCalculationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
