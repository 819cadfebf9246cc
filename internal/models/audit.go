// internal/models/audit.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of business actions.
type AuditLog struct {
	ID           uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	UserID       *uuid.UUID  `json:"user_id" gorm:"type:uuid;index"`
	ActorType    string      `json:"actor_type" gorm:"type:varchar(20)"`
	Action       AuditAction `json:"action" gorm:"type:varchar(50);not null;index"`
	ResourceType string      `json:"resource_type" gorm:"type:varchar(50);index"`
	ResourceID   *uuid.UUID  `json:"resource_id" gorm:"type:uuid;index"`
	OldValues    JSONB       `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB       `json:"new_values" gorm:"type:jsonb"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Notification is an in-portal notification for a borrower or a bank.
type Notification struct {
	BaseModel
	UserID  *uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	BankID  *uuid.UUID       `json:"bank_id" gorm:"type:uuid;index"`
	Type    NotificationType `json:"type" gorm:"type:varchar(40);not null;index"`
	Title   string           `json:"title" gorm:"not null"`
	Message string           `json:"message" gorm:"type:text"`
	Data    JSONB            `json:"data" gorm:"type:jsonb"`
	ReadAt  *time.Time       `json:"read_at"`
}

type EmailStatus string

const (
	EmailStatusPending EmailStatus = "pending"
	EmailStatusSent    EmailStatus = "sent"
	EmailStatusFailed  EmailStatus = "failed"
)

// EmailOutbox decouples email delivery from business transactions: services
// enqueue rows, the notification dispatcher sends them out-of-band.
type EmailOutbox struct {
	BaseModel
	Recipient string      `json:"recipient" gorm:"not null"`
	Subject   string      `json:"subject" gorm:"not null"`
	Body      string      `json:"body" gorm:"type:text"`
	Status    EmailStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Attempts  int         `json:"attempts" gorm:"default:0"`
	LastError string      `json:"last_error,omitempty" gorm:"type:text"`
	SentAt    *time.Time  `json:"sent_at"`
}

func (EmailOutbox) TableName() string {
	return "email_outbox"
}
