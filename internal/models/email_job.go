package models

import "time"

// EmailJob is an outbound email waiting in the outbox.
// Jobs are written in the same request that creates the code they carry
// and drained by the email worker.
type EmailJob struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind        string     `gorm:"type:varchar(30);not null" json:"kind"`
	Recipient   string     `gorm:"type:varchar(254);not null" json:"recipient"`
	UserID      string     `gorm:"type:char(36);not null;index" json:"user_id"`
	Code        string     `gorm:"type:varchar(40)" json:"-"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_email_status" json:"status"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt *time.Time `gorm:"index:idx_email_retry" json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (EmailJob) TableName() string {
	return "email_jobs"
}

// Email kinds
const (
	EmailKindSignupVerification = "signup_verification"
	EmailKindPasswordReset      = "password_reset"
)

// Status constants
const (
	EmailStatusPending       = "pending"
	EmailStatusProcessing    = "processing"
	EmailStatusDone          = "done"
	EmailStatusFailed        = "failed"
	EmailStatusPermanentFail = "permanent_fail"
)

// MaxEmailAttempts before a job is given up on
const MaxEmailAttempts = 5

// GetNextRetryDelay calculates exponential backoff for retries
func GetNextRetryDelay(attempts int) time.Duration {
	// 1min, 5min, 15min, 1h, 4h
	delays := []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
		1 * time.Hour,
		4 * time.Hour,
	}

	if attempts < 0 {
		return delays[0]
	}
	if attempts >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempts]
}
