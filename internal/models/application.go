// internal/models/application.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Application is a borrower's loan request. Owned exclusively by the borrower
// who created it; its status moves only through the transition table enforced
// by the status transition service.
type Application struct {
	BaseModel
	BorrowerID       uuid.UUID         `json:"borrower_id" gorm:"type:uuid;not null;index"`
	LoanType         LoanType          `json:"loan_type" gorm:"type:varchar(30);not null"`
	Currency         Currency          `json:"currency" gorm:"type:varchar(3);not null"`
	LoanAmount       decimal.Decimal   `json:"loan_amount" gorm:"type:decimal(12,2);not null"`
	TermMonths       int               `json:"term_months" gorm:"not null"`
	Status           ApplicationStatus `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	Version          int64             `json:"version" gorm:"default:0"`
	SubmittedAt      *time.Time        `json:"submitted_at"`
	WithdrawnAt      *time.Time        `json:"withdrawn_at"`
	WithdrawalReason string            `json:"withdrawal_reason,omitempty" gorm:"type:text"`

	// Relationships
	Borrower *User   `json:"borrower,omitempty" gorm:"foreignKey:BorrowerID"`
	Offers   []Offer `json:"offers,omitempty" gorm:"foreignKey:ApplicationID"`
}

// ApplicationStatusHistory is append-only; rows are never edited or deleted.
// It is the only way to reconstruct an application's lifecycle.
type ApplicationStatusHistory struct {
	ID              uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	ApplicationID   uuid.UUID         `json:"application_id" gorm:"type:uuid;not null;index"`
	OldStatus       ApplicationStatus `json:"old_status" gorm:"type:varchar(20);not null"`
	NewStatus       ApplicationStatus `json:"new_status" gorm:"type:varchar(20);not null"`
	ChangedByUserID *uuid.UUID        `json:"changed_by_user_id" gorm:"type:uuid"`
	ChangeReason    string            `json:"change_reason" gorm:"type:text"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (h *ApplicationStatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
