package security

import (
	"errors"
	"regexp"
	"strings"
)

// Form validation for the registration/edit flow. These mirror the rules the
// backend enforces, so most bad input is rejected before a network call.

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameSpaces   = errors.New("username cannot contain spaces")
	ErrUsernameInvalid  = errors.New("username cannot contain special characters")
	ErrNameRequired     = errors.New("name is required")
	ErrAgeInvalid       = errors.New("age must be between 1 and 120")
	ErrUnderage         = errors.New("must be 13 or older to register")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return ErrUsernameRequired
	}
	if strings.ContainsAny(username, " \t\n\r") {
		return ErrUsernameSpaces
	}
	if !usernamePattern.MatchString(username) {
		return ErrUsernameInvalid
	}
	return nil
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	return nil
}

func ValidateAge(age int) error {
	if age <= 0 || age > 120 {
		return ErrAgeInvalid
	}
	if age < 13 {
		return ErrUnderage
	}
	return nil
}
