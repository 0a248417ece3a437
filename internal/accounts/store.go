package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicate          = errors.New("value already in use")
	ErrInvalidCredentials = errors.New("unable to login with provided credentials")
	ErrNotVerified        = errors.New("user account not verified")
	ErrInactive           = errors.New("user account not active")
	ErrInvalidCode        = errors.New("unable to verify user")
	ErrTokenRevoked       = errors.New("token is blacklisted")
)

// Store persists users, one-time codes and revoked tokens
type Store interface {
	CreateUserWithSignupCode(ctx context.Context, u *models.User, code *models.SignupCode) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// PhoneNumberTaken and NationalIDTaken ignore the row of exceptUserID
	PhoneNumberTaken(ctx context.Context, phone, exceptUserID string) (bool, error)
	NationalIDTaken(ctx context.Context, nationalID, exceptUserID string) (bool, error)
	UpdateUserFields(ctx context.Context, id string, fields map[string]interface{}) error

	GetSignupCode(ctx context.Context, code string) (*models.SignupCode, error)
	// ConsumeSignupCode marks the owner verified and deletes the code
	ConsumeSignupCode(ctx context.Context, code *models.SignupCode) error

	CreatePasswordResetCode(ctx context.Context, code *models.PasswordResetCode) error
	GetPasswordResetCode(ctx context.Context, code string) (*models.PasswordResetCode, error)
	// ConsumePasswordResetCode stores the new hash and deletes every reset code of the owner
	ConsumePasswordResetCode(ctx context.Context, code *models.PasswordResetCode, passwordHash string) error

	BlacklistToken(ctx context.Context, token *models.BlacklistedToken) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Listener is notified when a code that must reach the user by email is issued
type Listener interface {
	OnSignupCodeCreated(ctx context.Context, user *models.User, code string) error
	OnPasswordResetCodeCreated(ctx context.Context, user *models.User, code string) error
}

// ProfileCache holds rendered profiles
type ProfileCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) bool
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// FileStorage stores identity document images
type FileStorage interface {
	Save(ctx context.Context, folder, filename string, data []byte) (key, url string, err error)
}
