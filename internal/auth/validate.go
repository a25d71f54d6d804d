package auth

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const passwordSpecials = "@$!%*?&"

// ValidateEmail rejects empty or malformed addresses.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("please enter an email")
	}
	if len(email) > 254 || !emailRegex.MatchString(email) {
		return apperr.Validation("invalid email format")
	}
	return nil
}

// ValidatePassword requires at least 8 characters drawn from letters,
// digits and @$!%*?&, with at least one of each class.
func ValidatePassword(password string) error {
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r > unicode.MaxASCII:
			return errWeakPassword
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return errWeakPassword
		}
	}
	if len(password) < 8 || !lower || !upper || !digit || !special {
		return errWeakPassword
	}
	return nil
}

var errWeakPassword = apperr.Validation("password must be at least 8 characters long, include 1 uppercase, 1 lowercase, 1 digit, and 1 special character")
