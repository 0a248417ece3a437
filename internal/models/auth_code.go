package models

import "time"

// SignupCode is a one-time email verification code
type SignupCode struct {
	Code      string    `gorm:"type:varchar(40);primaryKey" json:"code"`
	UserID    string    `gorm:"type:char(36);not null;index" json:"user_id"`
	IPAddress string    `gorm:"type:varchar(45);not null" json:"ip_address"`
	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime;index" json:"created_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for SignupCode
func (SignupCode) TableName() string {
	return "signup_codes"
}

// Expired reports whether the code is older than ttl
func (c *SignupCode) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.CreatedAt) > ttl
}

// PasswordResetCode is a one-time password reset code
type PasswordResetCode struct {
	Code      string    `gorm:"type:varchar(40);primaryKey" json:"code"`
	UserID    string    `gorm:"type:char(36);not null;index" json:"user_id"`
	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime;index" json:"created_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for PasswordResetCode
func (PasswordResetCode) TableName() string {
	return "password_reset_codes"
}

// Expired reports whether the code is older than ttl
func (c *PasswordResetCode) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.CreatedAt) > ttl
}

// BlacklistedToken records a revoked refresh token until it would expire anyway
type BlacklistedToken struct {
	JTI       string    `gorm:"type:varchar(64);primaryKey" json:"jti"`
	UserID    string    `gorm:"type:char(36);not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"type:datetime;not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for BlacklistedToken
func (BlacklistedToken) TableName() string {
	return "token_blacklist"
}
