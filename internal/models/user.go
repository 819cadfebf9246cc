// internal/models/user.go
package models

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"not null"`
	FullName     string     `json:"full_name"`
	UserType     UserType   `json:"user_type" gorm:"type:varchar(20);not null;index"`
	BankID       *uuid.UUID `json:"bank_id,omitempty" gorm:"type:uuid;index"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`

	// Relationships
	Bank *Bank `json:"bank,omitempty" gorm:"foreignKey:BankID"`
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

type Bank struct {
	BaseModel
	Name   string     `json:"name" gorm:"not null;uniqueIndex"`
	Status BankStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
}
