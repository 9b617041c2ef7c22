package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// ProvisioningStatus is the queue-level status of a provisioning item
type ProvisioningStatus string

const (
	ProvisioningStatusPending    ProvisioningStatus = "pending"
	ProvisioningStatusProcessing ProvisioningStatus = "processing"
	ProvisioningStatusCompleted  ProvisioningStatus = "completed"
	ProvisioningStatusFailed     ProvisioningStatus = "failed"
)

// ProvisioningStage is the position of an item in the provisioning state machine
//
//	queued -> creating_user -> sending_credentials -> completed
//	creating_user -> failed_at_user (retry re-enters creating_user)
//	sending_credentials -> failed_at_email (retry re-enters sending_credentials)
type ProvisioningStage string

const (
	StageQueued             ProvisioningStage = "queued"
	StageCreatingUser       ProvisioningStage = "creating_user"
	StageSendingCredentials ProvisioningStage = "sending_credentials"
	StageCompleted          ProvisioningStage = "completed"
	StageFailedAtUser       ProvisioningStage = "failed_at_user"
	StageFailedAtEmail      ProvisioningStage = "failed_at_email"
)

// EntryStage returns the stage processing resumes from. Completed stages are never redone.
func (s ProvisioningStage) EntryStage() ProvisioningStage {
	switch s {
	case StageSendingCredentials, StageFailedAtEmail:
		return StageSendingCredentials
	case StageCompleted:
		return StageCompleted
	default:
		return StageCreatingUser
	}
}

// FailureStage returns the failure branch for a working stage
func (s ProvisioningStage) FailureStage() ProvisioningStage {
	if s.EntryStage() == StageSendingCredentials {
		return StageFailedAtEmail
	}
	return StageFailedAtUser
}

// ProvisioningQueueItem is one "provision this paid sale" work item.
// SaleID is unique: a sale is provisioned at most once.
type ProvisioningQueueItem struct {
	ID             uuid.UUID          `json:"id"`
	SaleID         uuid.UUID          `json:"saleId"`
	Status         ProvisioningStatus `json:"status"`
	Stage          ProvisioningStage  `json:"stage"`
	RetryCount     int                `json:"retryCount"`
	LastError      null.String        `json:"lastError,omitempty"`
	AccountUserID  null.String        `json:"accountUserId,omitempty"`
	AccountLogin   null.String        `json:"accountLogin,omitempty"`
	PasswordSealed null.String        `json:"-"`
	PasswordHash   null.String        `json:"-"`
	EmailMessageID null.String        `json:"emailMessageId,omitempty"`
	CompletedAt    null.Time          `json:"completedAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// AccountCredential is the reference to an account created for a sale
type AccountCredential struct {
	AccountUserID  string
	Login          string
	PasswordSealed string
	PasswordHash   string
}

// EnqueueOutcome describes what an idempotent enqueue did
type EnqueueOutcome string

const (
	EnqueueCreated   EnqueueOutcome = "created"
	EnqueueRequeued  EnqueueOutcome = "requeued"
	EnqueueUnchanged EnqueueOutcome = "unchanged"
)

// NewAccount is the request to create an end-user login
type NewAccount struct {
	Email    string
	Password string
	Metadata map[string]string
}

// AccountUser is a login known to the account provider
type AccountUser struct {
	ID             string
	Email          string
	AlreadyExisted bool
}
