package session

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

type PasswordStrength string

const (
	PasswordStrengthWeak   PasswordStrength = "weak"
	PasswordStrengthMedium PasswordStrength = "medium"
	PasswordStrengthStrong PasswordStrength = "strong"
)

// RegisterRequest is the typed signup form.
type RegisterRequest struct {
	Email             string  `json:"email"`
	Password          string  `json:"password"`
	ConfirmPassword   string  `json:"confirmPassword"`
	FullName          string  `json:"fullName"`
	ProfilePictureRef *string `json:"profilePictureRef"`
}

// Validate runs the entry form checks. The manager does not call it.
func (r RegisterRequest) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if isBlank(r.FullName) {
		return invalidRequestErr("full name is empty")
	}
	if err := ValidatePassword(r.Password); err != nil {
		return err
	}
	if r.Password != r.ConfirmPassword {
		return invalidRequestErr("passwords do not match")
	}
	return nil
}

func ValidateEmail(email string) error {
	if email == "" {
		return invalidRequestErr("email is empty")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidRequestErr("invalid email [%s]", email)
	}

	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") || strings.HasPrefix(domain, ".") {
		return invalidRequestErr("invalid email domain [%s]", domain)
	}

	return nil
}

func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return invalidRequestErr("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return invalidRequestErr("password longer than %d bytes", MaxPasswordBytes)
	}
	return nil
}

// StrengthOf scores length and character variety:
// one point each for 8+ chars, 12+ chars, mixed case, a digit and a symbol.
func StrengthOf(password string) PasswordStrength {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsSpace(r):
			hasSymbol = true
		}
	}

	score := 0
	if length >= MinPasswordLength {
		score++
	}
	if length >= 12 {
		score++
	}
	if hasLower && hasUpper {
		score++
	}
	if hasDigit {
		score++
	}
	if hasSymbol {
		score++
	}

	switch {
	case score >= 4:
		return PasswordStrengthStrong
	case score == 3:
		return PasswordStrengthMedium
	}
	return PasswordStrengthWeak
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
