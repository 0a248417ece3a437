package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/NiruddeshJatra/Bhara/internal/accounts"
	"github.com/NiruddeshJatra/Bhara/internal/models"
)

// CreateUserWithSignupCode inserts a user and its first signup code together
func (gdb *GormDB) CreateUserWithSignupCode(ctx context.Context, u *models.User, code *models.SignupCode) error {
	return gdb.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return duplicate(err)
		}
		code.UserID = u.ID
		return tx.Omit("User").Create(code).Error
	})
}

func (gdb *GormDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := gdb.with(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, accounts.ErrNotFound)
	}
	return &u, nil
}

func (gdb *GormDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := gdb.with(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, notFound(err, accounts.ErrNotFound)
	}
	return &u, nil
}

func (gdb *GormDB) EmailExists(ctx context.Context, email string) (bool, error) {
	return gdb.exists(ctx, &models.User{}, "email = ?", email)
}

func (gdb *GormDB) UsernameExists(ctx context.Context, username string) (bool, error) {
	return gdb.exists(ctx, &models.User{}, "username = ?", username)
}

func (gdb *GormDB) PhoneNumberTaken(ctx context.Context, phone, exceptUserID string) (bool, error) {
	return gdb.exists(ctx, &models.User{}, "phone_number = ? AND id <> ?", phone, exceptUserID)
}

func (gdb *GormDB) NationalIDTaken(ctx context.Context, nationalID, exceptUserID string) (bool, error) {
	return gdb.exists(ctx, &models.User{}, "national_id = ? AND id <> ?", nationalID, exceptUserID)
}

func (gdb *GormDB) exists(ctx context.Context, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	err := gdb.with(ctx).Model(model).Where(query, args...).Count(&count).Error
	return count > 0, err
}

// UpdateUserFields updates the given columns of one user
func (gdb *GormDB) UpdateUserFields(ctx context.Context, id string, fields map[string]interface{}) error {
	result := gdb.with(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return duplicate(result.Error)
	}
	if result.RowsAffected == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (gdb *GormDB) GetSignupCode(ctx context.Context, code string) (*models.SignupCode, error) {
	var sc models.SignupCode
	if err := gdb.with(ctx).First(&sc, "code = ?", code).Error; err != nil {
		return nil, notFound(err, accounts.ErrNotFound)
	}
	return &sc, nil
}

// ConsumeSignupCode verifies the owner and deletes the code in one transaction
func (gdb *GormDB) ConsumeSignupCode(ctx context.Context, code *models.SignupCode) error {
	return gdb.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", code.UserID).
			Update("is_verified", true).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", code.UserID).Delete(&models.SignupCode{}).Error
	})
}

func (gdb *GormDB) CreatePasswordResetCode(ctx context.Context, code *models.PasswordResetCode) error {
	return gdb.with(ctx).Omit("User").Create(code).Error
}

func (gdb *GormDB) GetPasswordResetCode(ctx context.Context, code string) (*models.PasswordResetCode, error) {
	var rc models.PasswordResetCode
	if err := gdb.with(ctx).First(&rc, "code = ?", code).Error; err != nil {
		return nil, notFound(err, accounts.ErrNotFound)
	}
	return &rc, nil
}

// ConsumePasswordResetCode stores the new password hash and clears the owner's reset codes
func (gdb *GormDB) ConsumePasswordResetCode(ctx context.Context, code *models.PasswordResetCode, passwordHash string) error {
	return gdb.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", code.UserID).
			Update("password", passwordHash).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", code.UserID).Delete(&models.PasswordResetCode{}).Error
	})
}

// BlacklistToken records a revoked refresh token; revoking twice is a no-op
func (gdb *GormDB) BlacklistToken(ctx context.Context, token *models.BlacklistedToken) error {
	return gdb.with(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(token).Error
}

func (gdb *GormDB) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	return gdb.exists(ctx, &models.BlacklistedToken{}, "jti = ?", jti)
}

// EnqueueEmail writes an email job to the outbox
func (gdb *GormDB) EnqueueEmail(ctx context.Context, job *models.EmailJob) error {
	if job.Status == "" {
		job.Status = models.EmailStatusPending
	}
	return gdb.with(ctx).Create(job).Error
}

func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return accounts.ErrDuplicate
	}
	return err
}
