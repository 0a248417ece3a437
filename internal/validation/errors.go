package validation

import (
	"errors"
	"sort"
	"strings"
)

// Code identifies which rule rejected the input
type Code string

const (
	TooFewImages      Code = "too_few_images"
	TooManyImages     Code = "too_many_images"
	ImageTooLarge     Code = "image_too_large"
	UnsupportedFormat Code = "unsupported_format"

	InvalidDurationUnit Code = "invalid_duration_unit"
	InvalidBasePrice    Code = "invalid_base_price"
	InvalidMaxPeriod    Code = "invalid_max_period"

	MissingRangeBounds     Code = "missing_range_bounds"
	ConflictingSingleDate  Code = "conflicting_single_date"
	InvertedRange          Code = "inverted_range"
	PastRangeStart         Code = "past_range_start"
	MissingSingleDate      Code = "missing_single_date"
	ConflictingRangeBounds Code = "conflicting_range_bounds"
	PastSingleDate         Code = "past_single_date"

	FuturePurchaseYear Code = "future_purchase_year"
	InvalidField       Code = "invalid_field"
	InvalidRating      Code = "invalid_rating"
	InvalidStatus      Code = "invalid_status"

	WeakPassword       Code = "weak_password"
	InvalidEmail       Code = "invalid_email"
	InvalidUsername    Code = "invalid_username"
	InvalidPhoneNumber Code = "invalid_phone_number"
	InvalidNationalID  Code = "invalid_national_id"
	InvalidDateOfBirth Code = "invalid_date_of_birth"
	InvalidImageFile   Code = "invalid_image_file"
)

// Error is a single rule violation
type Error struct {
	Code    Code
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func newError(code Code, field, message string) *Error {
	return &Error{Code: code, Field: field, Message: message}
}

// FieldErrors maps field names to messages.
// Aggregate validators collect every failing field before returning one.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// Add records msg for field unless the field already has one
func (f FieldErrors) Add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

// AddError records a rule violation under field
func (f FieldErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	var verr *Error
	if errors.As(err, &verr) {
		f.Add(field, verr.Message)
		return
	}
	f.Add(field, err.Error())
}

// Err returns nil when no field failed
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

// CodeOf extracts the rule code from err, or "" if err is not a rule violation
func CodeOf(err error) Code {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Code
	}
	return ""
}

// Fields converts any validation failure into a field to message map
func Fields(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	var verr *Error
	if errors.As(err, &verr) {
		field := verr.Field
		if field == "" {
			field = "non_field_errors"
		}
		return FieldErrors{field: verr.Message}, true
	}
	return nil, false
}
