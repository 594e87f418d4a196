// Package validation checks user-supplied credentials and request bodies.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 12
	// MaxPasswordLength is bcrypt's input limit in bytes; longer passwords
	// would be rejected by the hasher.
	MaxPasswordLength = 72
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxEmailLength    = 254
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)

type charClass uint8

const (
	classUpper charClass = 1 << iota
	classLower
	classDigit
	classSpecial
)

var classNames = []struct {
	class charClass
	name  string
}{
	{classUpper, "an uppercase letter"},
	{classLower, "a lowercase letter"},
	{classDigit, "a digit"},
	{classSpecial, "a special character"},
}

func classify(s string) charClass {
	var seen charClass
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			seen |= classUpper
		case unicode.IsLower(r):
			seen |= classLower
		case unicode.IsDigit(r):
			seen |= classDigit
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			seen |= classSpecial
		}
	}
	return seen
}

// ValidatePassword requires MinPasswordLength to MaxPasswordLength bytes and
// at least one character of every class. All missing classes are reported
// together.
func ValidatePassword(password string) error {
	switch n := len(password); {
	case n < MinPasswordLength:
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	case n > MaxPasswordLength:
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLength)
	}

	seen := classify(password)
	var missing []string
	for _, c := range classNames {
		if seen&c.class == 0 {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return errors.New("password must contain " + strings.Join(missing, ", "))
	}
	return nil
}

// ValidateUsername enforces the identity-key format used by likes and usage
// records: ASCII letters, digits, underscores and hyphens, with a letter or
// digit at both ends.
func ValidateUsername(username string) error {
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("username must be %d to %d characters long", MinUsernameLength, MaxUsernameLength)
	}
	for i := 0; i < len(username); i++ {
		b := username[i]
		alnum := b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
		switch {
		case alnum:
		case b == '_' || b == '-':
			if i == 0 || i == len(username)-1 {
				return errors.New("username cannot start or end with underscore or hyphen")
			}
		default:
			return errors.New("username can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

// ValidateEmail checks length and a conservative address shape.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLength)
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}
