package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/NiruddeshJatra/Bhara/internal/auth"
	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/validation"
)

const (
	profileCacheTTL = 15 * time.Minute
	defaultClientIP = "0.0.0.0"
	identityFolder  = "national_ids"
)

// ProfileCacheKey is the cache key of a user's rendered profile
func ProfileCacheKey(userID string) string {
	return "user_profile_" + userID
}

// Profile is the public view of a user
type Profile struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PhoneNumber      *string    `json:"phone_number"`
	DateOfBirth      *time.Time `json:"date_of_birth"`
	ProfilePicture   string     `json:"profile_picture"`
	Bio              string     `json:"bio"`
	Location         string     `json:"location"`
	AverageRating    *float64   `json:"average_rating"`
	MemberSince      string     `json:"member_since"`
	FullName         string     `json:"full_name"`
	IsTrusted        bool       `json:"is_trusted"`
	ProfileCompleted bool       `json:"profile_completed"`
}

func newProfile(u *models.User) Profile {
	return Profile{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		PhoneNumber:      u.PhoneNumber,
		DateOfBirth:      u.DateOfBirth,
		ProfilePicture:   u.ProfilePicture,
		Bio:              u.Bio,
		Location:         u.Location,
		AverageRating:    u.AverageRating,
		MemberSince:      u.MemberSince(),
		FullName:         u.FullName(),
		IsTrusted:        u.IsTrusted,
		ProfileCompleted: u.ProfileCompleted,
	}
}

// ProfilePatch lists the profile fields a user may edit directly
type ProfilePatch struct {
	PhoneNumber    *string `json:"phone_number"`
	ProfilePicture *string `json:"profile_picture"`
	Bio            *string `json:"bio"`
	Location       *string `json:"location"`
}

type Service struct {
	store     Store
	tokens    *auth.Manager
	cache     ProfileCache
	files     FileStorage
	listeners []Listener
	codeTTL   time.Duration
	now       func() time.Time
}

func NewService(store Store, tokens *auth.Manager, cache ProfileCache, files FileStorage, codeTTL time.Duration) *Service {
	return &Service{
		store:   store,
		tokens:  tokens,
		cache:   cache,
		files:   files,
		codeTTL: codeTTL,
		now:     time.Now,
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RegisterListener adds a code listener
func (s *Service) RegisterListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Signup creates an unverified user and issues a signup code
func (s *Service) Signup(ctx context.Context, in validation.SignupInput, clientIP string) (*models.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	errs := validation.ValidateSignup(in)

	if errs["username"] == "" {
		taken, err := s.store.UsernameExists(ctx, in.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			errs.Add("username", "Username is already taken.")
		}
	}
	if errs["email"] == "" {
		registered, err := s.store.EmailExists(ctx, in.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if registered {
			errs.Add("email", "Email is already registered.")
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if clientIP == "" {
		clientIP = defaultClientIP
	}
	code, err := newCode()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:            in.Email,
		Username:         in.Username,
		PasswordHash:     hash,
		IsActive:         true,
		MarketingConsent: in.MarketingConsent,
	}
	signupCode := &models.SignupCode{Code: code, IPAddress: clientIP}

	if err := s.store.CreateUserWithSignupCode(ctx, user, signupCode); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("[Accounts] Created user %s (%s)", user.ID, user.Email)

	for _, l := range s.listeners {
		if err := l.OnSignupCodeCreated(ctx, user, code); err != nil {
			log.Printf("[Accounts] Signup listener failed for %s: %v", user.ID, err)
		}
	}
	return user, nil
}

// VerifySignup marks the owner of code verified
func (s *Service) VerifySignup(ctx context.Context, code string) error {
	sc, err := s.store.GetSignupCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	if sc.Expired(s.codeTTL, s.now()) {
		return ErrInvalidCode
	}
	if err := s.store.ConsumeSignupCode(ctx, sc); err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	s.cache.Delete(ctx, ProfileCacheKey(sc.UserID))
	return nil
}

// Login checks credentials and returns a token pair
func (s *Service) Login(ctx context.Context, email, password string) (auth.Pair, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrNotFound) {
		return auth.Pair{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Pair{}, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return auth.Pair{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return auth.Pair{}, ErrNotVerified
	}
	if !user.IsActive {
		return auth.Pair{}, ErrInactive
	}

	pair, err := s.tokens.IssuePair(user.ID, user.IsStaff)
	if err != nil {
		return auth.Pair{}, err
	}

	if err := s.store.UpdateUserFields(ctx, user.ID, map[string]interface{}{"last_login": s.now().UTC()}); err != nil {
		log.Printf("[Accounts] Failed to record last login for %s: %v", user.ID, err)
	}
	return pair, nil
}

// Logout revokes a refresh token
func (s *Service) Logout(ctx context.Context, refresh string) error {
	claims, err := s.tokens.Parse(refresh, auth.TokenRefresh)
	if err != nil {
		return err
	}
	return s.store.BlacklistToken(ctx, &models.BlacklistedToken{
		JTI:       claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// Refresh issues a new access token for a refresh token that is not revoked
func (s *Service) Refresh(ctx context.Context, refresh string) (string, error) {
	claims, err := s.tokens.Parse(refresh, auth.TokenRefresh)
	if err != nil {
		return "", err
	}
	revoked, err := s.store.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrTokenRevoked
	}
	return s.tokens.IssueAccess(claims.UserID, claims.IsStaff)
}

// RequestPasswordReset issues a reset code for a verified, active user.
// Unknown emails are reported as ErrNotFound.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if !user.IsVerified {
		return ErrNotVerified
	}
	if !user.IsActive {
		return ErrInactive
	}

	code, err := newCode()
	if err != nil {
		return err
	}
	if err := s.store.CreatePasswordResetCode(ctx, &models.PasswordResetCode{Code: code, UserID: user.ID}); err != nil {
		return fmt.Errorf("failed to create reset code: %w", err)
	}

	for _, l := range s.listeners {
		if err := l.OnPasswordResetCodeCreated(ctx, user, code); err != nil {
			log.Printf("[Accounts] Password reset listener failed for %s: %v", user.ID, err)
		}
	}
	return nil
}

// VerifyPasswordReset reports whether code is a live reset code
func (s *Service) VerifyPasswordReset(ctx context.Context, code string) error {
	_, err := s.liveResetCode(ctx, code)
	return err
}

// CompletePasswordReset sets a new password and consumes the code
func (s *Service) CompletePasswordReset(ctx context.Context, code, password string) error {
	rc, err := s.liveResetCode(ctx, code)
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.store.ConsumePasswordResetCode(ctx, rc, hash)
}

func (s *Service) liveResetCode(ctx context.Context, code string) (*models.PasswordResetCode, error) {
	rc, err := s.store.GetPasswordResetCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if rc.Expired(s.codeTTL, s.now()) {
		return nil, ErrInvalidCode
	}
	return rc, nil
}

// ChangePassword sets a new password for an authenticated user
func (s *Service) ChangePassword(ctx context.Context, userID, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.store.UpdateUserFields(ctx, userID, map[string]interface{}{"password": hash})
}

// Profile returns the cached profile of a user, loading it on a miss
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	key := ProfileCacheKey(userID)

	var p Profile
	if s.cache.GetJSON(ctx, key, &p) {
		return p, nil
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	p = newProfile(user)
	s.cache.SetJSON(ctx, key, p, profileCacheTTL)
	return p, nil
}

// UpdateProfile applies the editable profile fields
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (Profile, error) {
	errs := validation.FieldErrors{}
	fields := map[string]interface{}{}

	if patch.PhoneNumber != nil {
		if *patch.PhoneNumber == "" {
			fields["phone_number"] = nil
		} else {
			errs.AddError("phone_number", validation.ValidatePhoneNumber(*patch.PhoneNumber))
			fields["phone_number"] = *patch.PhoneNumber
		}
	}
	if phone, ok := fields["phone_number"].(string); ok && errs["phone_number"] == "" {
		if err := s.checkUnique(ctx, userID, errs, phone, ""); err != nil {
			return Profile{}, err
		}
	}
	if patch.ProfilePicture != nil {
		fields["profile_picture"] = *patch.ProfilePicture
	}
	if patch.Bio != nil {
		fields["bio"] = *patch.Bio
	}
	if patch.Location != nil {
		errs.AddError("location", validation.ValidateLocation(*patch.Location))
		fields["location"] = *patch.Location
	}
	if err := errs.Err(); err != nil {
		return Profile{}, err
	}

	if len(fields) > 0 {
		if err := s.store.UpdateUserFields(ctx, userID, fields); err != nil {
			return Profile{}, err
		}
	}
	s.cache.Delete(ctx, ProfileCacheKey(userID))
	return s.Profile(ctx, userID)
}

// CompleteProfile stores identity details and marks the profile complete
func (s *Service) CompleteProfile(ctx context.Context, userID string, in validation.ProfileCompletionInput) (Profile, error) {
	if err := validation.ValidateProfileCompletion(in, s.now()); err != nil {
		return Profile{}, err
	}
	errs := validation.FieldErrors{}
	if err := s.checkUnique(ctx, userID, errs, in.PhoneNumber, in.NationalID); err != nil {
		return Profile{}, err
	}
	if err := errs.Err(); err != nil {
		return Profile{}, err
	}

	frontURL, err := s.saveIdentityImage(ctx, userID, "front", *in.NationalIDFront)
	if err != nil {
		return Profile{}, err
	}
	backURL, err := s.saveIdentityImage(ctx, userID, "back", *in.NationalIDBack)
	if err != nil {
		return Profile{}, err
	}

	dob := models.DateOf(*in.DateOfBirth)
	fields := map[string]interface{}{
		"phone_number":      in.PhoneNumber,
		"date_of_birth":     dob,
		"national_id":       in.NationalID,
		"national_id_front": frontURL,
		"national_id_back":  backURL,
		"profile_completed": true,
	}
	if in.FirstName != "" {
		fields["first_name"] = in.FirstName
	}
	if in.LastName != "" {
		fields["last_name"] = in.LastName
	}
	if in.Location != "" {
		fields["location"] = in.Location
	}

	if err := s.store.UpdateUserFields(ctx, userID, fields); err != nil {
		return Profile{}, err
	}
	s.cache.Delete(ctx, ProfileCacheKey(userID))

	log.Printf("[Accounts] Profile completed for user %s", userID)
	return s.Profile(ctx, userID)
}

// checkUnique records a field error when another user already holds phone or
// nationalID. Empty values are skipped.
func (s *Service) checkUnique(ctx context.Context, userID string, errs validation.FieldErrors, phone, nationalID string) error {
	if phone != "" {
		taken, err := s.store.PhoneNumberTaken(ctx, phone, userID)
		if err != nil {
			return fmt.Errorf("failed to check phone number: %w", err)
		}
		if taken {
			errs.Add("phone_number", "This phone number is already registered.")
		}
	}
	if nationalID != "" {
		taken, err := s.store.NationalIDTaken(ctx, nationalID, userID)
		if err != nil {
			return fmt.Errorf("failed to check national id: %w", err)
		}
		if taken {
			errs.Add("national_id", "This national ID is already registered.")
		}
	}
	return nil
}

func (s *Service) saveIdentityImage(ctx context.Context, userID, side string, img validation.ImageUpload) (string, error) {
	name := fmt.Sprintf("%s_%s%s", userID, side, strings.ToLower(filepath.Ext(img.Filename)))
	_, url, err := s.files.Save(ctx, identityFolder, name, img.Data)
	if err != nil {
		return "", fmt.Errorf("failed to store national id %s: %w", side, err)
	}
	return url, nil
}

// newCode returns 40 hex characters from crypto/rand
func newCode() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
