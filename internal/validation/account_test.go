package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		message  string
	}{
		{"Ab1!", "Password must be at least 8 characters long."},
		{"abcdefg1!", "Password must contain at least one uppercase letter."},
		{"ABCDEFG1!", "Password must contain at least one lowercase letter."},
		{"Abcdefgh!", "Password must contain at least one digit."},
		{"Abcdefgh1", "Password must contain at least one special character."},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		require.Error(t, err, tt.password)
		fields, _ := Fields(err)
		require.Equal(t, tt.message, fields["password"])
	}

	require.NoError(t, ValidatePassword("Str0ng!Pass"))
}

func TestFieldFormats(t *testing.T) {
	require.NoError(t, ValidateEmail("rahim@example.com"))
	require.Equal(t, InvalidEmail, CodeOf(ValidateEmail("rahim@example")))
	require.Equal(t, InvalidEmail, CodeOf(ValidateEmail("ra him@example.com")))

	require.NoError(t, ValidateUsername("rahim_01"))
	require.Equal(t, InvalidUsername, CodeOf(ValidateUsername("rahim-01")))
	require.Equal(t, InvalidUsername, CodeOf(ValidateUsername("a234567890123456789012345678901")))

	for _, phone := range []string{"01712345678", "8801712345678", "+8801912345678"} {
		require.NoError(t, ValidatePhoneNumber(phone), phone)
	}
	for _, phone := range []string{"01212345678", "0171234567", "+1201712345678"} {
		require.Equal(t, InvalidPhoneNumber, CodeOf(ValidatePhoneNumber(phone)), phone)
	}

	require.NoError(t, ValidateNationalID("1234567890"))
	require.Equal(t, InvalidNationalID, CodeOf(ValidateNationalID("123456789")))
	require.Equal(t, InvalidNationalID, CodeOf(ValidateNationalID("12345678ab")))
}

func TestValidateDateOfBirth(t *testing.T) {
	require.NoError(t, ValidateDateOfBirth(time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC), today))
	require.NoError(t, ValidateDateOfBirth(time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC), today))

	err := ValidateDateOfBirth(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), today)
	fields, _ := Fields(err)
	require.Equal(t, "Date of birth cannot be in the future.", fields["date_of_birth"])

	err = ValidateDateOfBirth(time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC), today)
	fields, _ = Fields(err)
	require.Equal(t, "Date of birth cannot be before 1900-01-01.", fields["date_of_birth"])

	err = ValidateDateOfBirth(time.Date(2005, 1, 2, 0, 0, 0, 0, time.UTC), today)
	fields, _ = Fields(err)
	require.Equal(t, "You must be at least 18 years old to register.", fields["date_of_birth"])
}

func TestValidateIdentityImage(t *testing.T) {
	require.NoError(t, ValidateIdentityImage("national_id_front", ImageUpload{Data: jpegBytes}))
	require.NoError(t, ValidateIdentityImage("national_id_front", ImageUpload{Size: 1024, ContentType: "image/webp"}))

	err := ValidateIdentityImage("national_id_back", ImageUpload{Data: gifBytes})
	require.Equal(t, InvalidImageFile, CodeOf(err))

	err = ValidateIdentityImage("national_id_back", ImageUpload{Size: MaxIdentityImage + 1, ContentType: "image/png"})
	fields, _ := Fields(err)
	require.Equal(t, "Image file cannot be larger than 10MB.", fields["national_id_back"])
}

func TestValidateSignup_CollectsAllFields(t *testing.T) {
	errs := ValidateSignup(SignupInput{Email: "bad", Username: "bad name", Password: "short"})
	require.Len(t, errs, 3)
	require.Contains(t, errs, "email")
	require.Contains(t, errs, "username")
	require.Contains(t, errs, "password")

	require.Empty(t, ValidateSignup(SignupInput{Email: "ok@bhara.xyz", Username: "ok_user", Password: "Str0ng!Pass"}))
}

func TestValidateProfileCompletion(t *testing.T) {
	err := ValidateProfileCompletion(ProfileCompletionInput{FirstName: "Rahim"}, today)
	fields, ok := Fields(err)
	require.True(t, ok)
	for _, f := range []string{"phone_number", "date_of_birth", "national_id", "national_id_front", "national_id_back"} {
		require.Equal(t, "This field is required.", fields[f], f)
	}

	dob := time.Date(1995, 5, 5, 0, 0, 0, 0, time.UTC)
	err = ValidateProfileCompletion(ProfileCompletionInput{
		PhoneNumber:     "123",
		DateOfBirth:     &dob,
		NationalID:      "1234567890",
		NationalIDFront: &ImageUpload{Data: pngBytes},
		NationalIDBack:  &ImageUpload{Data: pngBytes},
	}, today)
	fields, ok = Fields(err)
	require.True(t, ok)
	require.Len(t, fields, 1)
	require.Contains(t, fields["phone_number"], "Bangladeshi phone number")

	err = ValidateProfileCompletion(ProfileCompletionInput{
		PhoneNumber:     "01712345678",
		DateOfBirth:     &dob,
		NationalID:      "1234567890",
		NationalIDFront: &ImageUpload{Data: pngBytes},
		NationalIDBack:  &ImageUpload{Data: jpegBytes},
	}, today)
	require.NoError(t, err)
}

func TestFieldErrorsError(t *testing.T) {
	errs := FieldErrors{"b": "second", "a": "first"}
	require.Equal(t, "a: first; b: second", errs.Error())
	require.Nil(t, FieldErrors{}.Err())
}
