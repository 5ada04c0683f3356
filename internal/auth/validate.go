package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/suPer8Hu/subspace-chat/internal/common"
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

func ValidateEmail(email string) error {
	if email == "" {
		return common.Validation("email", "Email is required")
	}
	if !emailPattern.MatchString(email) {
		return common.Validation("email", "Please enter a valid email")
	}
	return nil
}

func ValidatePassword(pw string) error {
	if pw == "" {
		return common.Validation("password", "Password is required")
	}
	if utf8.RuneCountInString(pw) < 8 {
		return common.Validation("password", "Password must be at least 8 characters")
	}
	var lower, upper, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return common.Validation("password", "Password must contain uppercase, lowercase, and number")
	}
	return nil
}

func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n == 0:
		return common.Validation("display_name", "Display name is required")
	case n < 2:
		return common.Validation("display_name", "Display name must be at least 2 characters")
	case n > 50:
		return common.Validation("display_name", "Display name must be less than 50 characters")
	}
	return nil
}
