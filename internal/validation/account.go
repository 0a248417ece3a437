package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	phonePattern      = regexp.MustCompile(`^(\+?88)?01[3-9]\d{8}$`)
	nationalIDPattern = regexp.MustCompile(`^[0-9]{10}$`)

	earliestBirthDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	latestBirthDate   = time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)
)

const (
	MaxUsernameLength  = 30
	MaxLocationLength  = 100
	MaxIdentityImage   = 10 * 1024 * 1024
	MinPasswordLength  = 8
	punctuationSymbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

var identityImageTypes = []string{"image/jpeg", "image/png", "image/jpg", "image/webp"}

// ValidatePassword enforces length and character-class rules
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return newError(WeakPassword, "password", "Password must be at least 8 characters long.")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(punctuationSymbols, r):
			special = true
		}
	}

	if !upper {
		return newError(WeakPassword, "password", "Password must contain at least one uppercase letter.")
	}
	if !lower {
		return newError(WeakPassword, "password", "Password must contain at least one lowercase letter.")
	}
	if !digit {
		return newError(WeakPassword, "password", "Password must contain at least one digit.")
	}
	if !special {
		return newError(WeakPassword, "password", "Password must contain at least one special character.")
	}
	return nil
}

// ValidateEmail checks the address has a local part, a domain and a dot
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return newError(InvalidEmail, "email", "Invalid email address.")
	}
	return nil
}

// ValidateUsername allows letters, digits and underscores up to 30 characters
func ValidateUsername(username string) error {
	if username == "" {
		return newError(InvalidUsername, "username", msgRequired)
	}
	if len(username) > MaxUsernameLength {
		return newError(InvalidUsername, "username", "Ensure this field has no more than 30 characters.")
	}
	if !usernamePattern.MatchString(username) {
		return newError(InvalidUsername, "username", "Username can only contain letters, numbers, and underscores.")
	}
	return nil
}

// ValidatePhoneNumber accepts Bangladeshi mobile numbers with optional 88/+88 prefix
func ValidatePhoneNumber(phone string) error {
	if !phonePattern.MatchString(phone) {
		return newError(InvalidPhoneNumber, "phone_number", "Invalid phone number. Please enter a valid Bangladeshi phone number.")
	}
	return nil
}

// ValidateNationalID accepts exactly ten digits
func ValidateNationalID(id string) error {
	if !nationalIDPattern.MatchString(id) {
		return newError(InvalidNationalID, "national_id", "Invalid national ID. Please enter a valid Bangladeshi national ID.")
	}
	return nil
}

// ValidateDateOfBirth rejects future dates, dates before 1900 and anyone born after 2005-01-01
func ValidateDateOfBirth(dob, today time.Time) error {
	day := models.DateOf(dob)
	if day.After(models.DateOf(today)) {
		return newError(InvalidDateOfBirth, "date_of_birth", "Date of birth cannot be in the future.")
	}
	if day.Before(earliestBirthDate) {
		return newError(InvalidDateOfBirth, "date_of_birth", "Date of birth cannot be before 1900-01-01.")
	}
	if day.After(latestBirthDate) {
		return newError(InvalidDateOfBirth, "date_of_birth", "You must be at least 18 years old to register.")
	}
	return nil
}

// ValidateIdentityImage checks an identity document or profile picture upload
func ValidateIdentityImage(field string, img ImageUpload) error {
	if !mimetype.EqualsAny(img.DetectedType(), identityImageTypes...) {
		return newError(InvalidImageFile, field, "Invalid image file. Please upload a valid image file.")
	}
	if img.ActualSize() > MaxIdentityImage {
		return newError(InvalidImageFile, field, "Image file cannot be larger than 10MB.")
	}
	return nil
}

// ValidateLocation bounds the free-text location
func ValidateLocation(location string) error {
	if len([]rune(location)) > MaxLocationLength {
		return newError(InvalidField, "location", "Ensure this field has no more than 100 characters.")
	}
	return nil
}

// SignupInput is the signup request body
type SignupInput struct {
	Email            string `json:"email"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	MarketingConsent bool   `json:"marketing_consent"`
}

// ValidateSignup collects format errors for every signup field
func ValidateSignup(in SignupInput) FieldErrors {
	errs := FieldErrors{}
	errs.AddError("email", ValidateEmail(in.Email))
	errs.AddError("username", ValidateUsername(in.Username))
	errs.AddError("password", ValidatePassword(in.Password))
	return errs
}

// ProfileCompletionInput carries the identity fields needed to complete a profile
type ProfileCompletionInput struct {
	FirstName       string
	LastName        string
	PhoneNumber     string
	Location        string
	DateOfBirth     *time.Time
	NationalID      string
	NationalIDFront *ImageUpload
	NationalIDBack  *ImageUpload
}

// ValidateProfileCompletion validates present fields and then requires the identity set
func ValidateProfileCompletion(in ProfileCompletionInput, today time.Time) error {
	errs := FieldErrors{}

	if in.PhoneNumber != "" {
		errs.AddError("phone_number", ValidatePhoneNumber(in.PhoneNumber))
	}
	if in.DateOfBirth != nil {
		errs.AddError("date_of_birth", ValidateDateOfBirth(*in.DateOfBirth, today))
	}
	if in.NationalID != "" {
		errs.AddError("national_id", ValidateNationalID(in.NationalID))
	}
	if in.NationalIDFront != nil {
		errs.AddError("national_id_front", ValidateIdentityImage("national_id_front", *in.NationalIDFront))
	}
	if in.NationalIDBack != nil {
		errs.AddError("national_id_back", ValidateIdentityImage("national_id_back", *in.NationalIDBack))
	}
	if in.Location != "" {
		errs.AddError("location", ValidateLocation(in.Location))
	}

	required := map[string]bool{
		"phone_number":      in.PhoneNumber != "",
		"date_of_birth":     in.DateOfBirth != nil,
		"national_id":       in.NationalID != "",
		"national_id_front": in.NationalIDFront != nil,
		"national_id_back":  in.NationalIDBack != nil,
	}
	for field, present := range required {
		if !present {
			errs.Add(field, msgRequired)
		}
	}

	return errs.Err()
}
