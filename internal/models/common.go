// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not set one, so the same
// models work against postgres and the sqlite test database.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return nil
		}
	}

	return json.Unmarshal(bytes, j)
}

// Enums

type UserType string

const (
	UserTypeBorrower    UserType = "borrower"
	UserTypeBankOfficer UserType = "bank_officer"
	UserTypeAdmin       UserType = "admin"
)

type LoanType string

const (
	LoanTypePersonal          LoanType = "personal"
	LoanTypeHome              LoanType = "home"
	LoanTypeAuto              LoanType = "auto"
	LoanTypeStudent           LoanType = "student"
	LoanTypeDebtConsolidation LoanType = "debt_consolidation"
)

type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

type ApplicationStatus string

const (
	ApplicationStatusDraft           ApplicationStatus = "draft"
	ApplicationStatusSubmitted       ApplicationStatus = "submitted"
	ApplicationStatusUnderReview     ApplicationStatus = "under_review"
	ApplicationStatusOffersAvailable ApplicationStatus = "offers_available"
	ApplicationStatusAccepted        ApplicationStatus = "accepted"
	ApplicationStatusRejected        ApplicationStatus = "rejected"
	ApplicationStatusExpired         ApplicationStatus = "expired"
	ApplicationStatusWithdrawn       ApplicationStatus = "withdrawn"
	ApplicationStatusCompleted       ApplicationStatus = "completed"
)

type OfferStatus string

const (
	OfferStatusCalculated           OfferStatus = "calculated"
	OfferStatusSubmitted            OfferStatus = "submitted"
	OfferStatusAccepted             OfferStatus = "accepted"
	OfferStatusWithdrawn            OfferStatus = "withdrawn"
	OfferStatusExpired              OfferStatus = "expired"
	OfferStatusExpiredWithSelection OfferStatus = "expired_with_selection"
)

type BankStatus string

const (
	BankStatusActive    BankStatus = "active"
	BankStatusSuspended BankStatus = "suspended"
)

type CompetitivePosition string

const (
	CompetitivePositionMoreCompetitive CompetitivePosition = "more_competitive"
	CompetitivePositionAverage         CompetitivePosition = "average"
	CompetitivePositionLessCompetitive CompetitivePosition = "less_competitive"
)

type AuditAction string

const (
	AuditActionOfferCalculated          AuditAction = "offer_calculated"
	AuditActionOfferSubmitted           AuditAction = "offer_submitted"
	AuditActionOfferSelected            AuditAction = "offer_selected"
	AuditActionOfferDeselected          AuditAction = "offer_deselected"
	AuditActionOfferSelectionFailed     AuditAction = "offer_selection_failed"
	AuditActionOfferWithdrawn           AuditAction = "offer_withdrawn"
	AuditActionOfferExpired             AuditAction = "offer_expired"
	AuditActionRateCardCreated          AuditAction = "rate_card_created"
	AuditActionRateCardUpdated          AuditAction = "rate_card_updated"
	AuditActionApplicationStatusChanged AuditAction = "application_status_changed"
	AuditActionApplicationWithdrawn     AuditAction = "application_withdrawn"
)

type NotificationType string

const (
	NotificationTypeOfferExpiringSoon NotificationType = "offer_expiring_soon"
	NotificationTypeOfferSelected     NotificationType = "offer_selected"
	NotificationTypeOfferExpired      NotificationType = "offer_expired"
	NotificationTypeOffersAvailable   NotificationType = "offers_available"
	NotificationTypeAppWithdrawn      NotificationType = "application_withdrawn"
)
