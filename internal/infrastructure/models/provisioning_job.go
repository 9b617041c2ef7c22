package models

import (
	"time"

	"github.com/google/uuid"
)

type ProvisioningJob struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	SaleID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Status         string    `gorm:"type:varchar(20);not null;index"`
	Stage          string    `gorm:"type:varchar(32);not null"`
	RetryCount     int       `gorm:"not null;default:0"`
	LastError      *string   `gorm:"type:text"`
	AccountUserID  *string   `gorm:"type:varchar(64)"`
	AccountLogin   *string   `gorm:"type:varchar(255)"`
	PasswordSealed *string   `gorm:"type:text"`
	PasswordHash   *string   `gorm:"type:varchar(100)"`
	EmailMessageID *string   `gorm:"type:varchar(128)"`
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time `gorm:"index"`
}

func (ProvisioningJob) TableName() string {
	return "provisioning_queue"
}
