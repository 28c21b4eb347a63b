package password

import (
	"errors"
	"unicode/utf8"
)

const (
	MinLength = 10
	MaxLength = 30
)

var (
	ErrTooShort = errors.New("password must be at least 10 characters")
	ErrTooLong  = errors.New("password must be at most 30 characters")
	ErrTooWeak  = errors.New("password must contain at least one letter and one digit")
)

// CheckPolicy enforces the acceptance rule for new passwords: 10 to 30
// characters with at least one ASCII letter and one ASCII digit.
func CheckPolicy(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < MinLength {
		return ErrTooShort
	}
	if n > MaxLength {
		return ErrTooLong
	}

	var hasAlpha, hasDigit bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasAlpha = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasAlpha || !hasDigit {
		return ErrTooWeak
	}

	return nil
}
