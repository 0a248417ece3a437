package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account holder. Email is the login identifier.
type User struct {
	ID           string `gorm:"type:char(36);primaryKey" json:"id"`
	Email        string `gorm:"type:varchar(254);not null;uniqueIndex" json:"email"`
	Username     string `gorm:"type:varchar(30);not null;uniqueIndex" json:"username"`
	PasswordHash string `gorm:"column:password;type:varchar(128);not null" json:"-"`
	FirstName    string `gorm:"type:varchar(150)" json:"first_name"`
	LastName     string `gorm:"type:varchar(150)" json:"last_name"`

	IsVerified bool `gorm:"not null;default:false" json:"is_verified"`
	IsActive   bool `gorm:"not null;default:true" json:"is_active"`
	IsTrusted  bool `gorm:"not null;default:false" json:"is_trusted"`
	IsStaff    bool `gorm:"not null;default:false" json:"-"`

	PhoneNumber     *string    `gorm:"type:varchar(15);uniqueIndex" json:"phone_number"`
	DateOfBirth     *time.Time `gorm:"type:date" json:"date_of_birth"`
	ProfilePicture  string     `gorm:"type:varchar(255)" json:"profile_picture"`
	Bio             string     `gorm:"type:text" json:"bio"`
	Location        string     `gorm:"type:varchar(100)" json:"location"`
	NationalID      *string    `gorm:"type:varchar(10);uniqueIndex" json:"-"`
	NationalIDFront string     `gorm:"type:varchar(255)" json:"-"`
	NationalIDBack  string     `gorm:"type:varchar(255)" json:"-"`

	MarketingConsent bool     `gorm:"not null;default:false" json:"marketing_consent"`
	ProfileCompleted bool     `gorm:"not null;default:false" json:"profile_completed"`
	AverageRating    *float64 `gorm:"type:decimal(3,2)" json:"average_rating"`

	LastLogin *time.Time `gorm:"type:datetime" json:"-"`
	CreatedAt time.Time  `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"type:datetime;not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID when the caller did not
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// MemberSince formats the signup month, e.g. "January 2024"
func (u *User) MemberSince() string {
	return u.CreatedAt.Format("January 2006")
}
