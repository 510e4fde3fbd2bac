package accountsvc

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicy is the configurable strength policy applied to new
// passwords at registration and password change.
type PasswordPolicy struct {
	MinLength        int
	RejectCommon     bool
	RejectAllNumeric bool
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, RejectCommon: true, RejectAllNumeric: true}
}

// commonPasswords is a short deny-list of passwords seen in breach corpora.
var commonPasswords = map[string]bool{
	"password":   true,
	"password1":  true,
	"passw0rd":   true,
	"12345678":   true,
	"123456789":  true,
	"1234567890": true,
	"qwerty123":  true,
	"iloveyou":   true,
	"sunshine":   true,
	"princess":   true,
	"welcome1":   true,
	"admin123":   true,
	"letmein1":   true,
	"football":   true,
	"baseball":   true,
	"abc12345":   true,
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters", p.MinLength)
	}

	if p.RejectCommon && commonPasswords[strings.ToLower(password)] {
		return errors.New("password is too common")
	}

	if p.RejectAllNumeric && isAllNumeric(password) {
		return errors.New("password cannot be entirely numeric")
	}

	return nil
}

func isAllNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", errors.New("error hashing password")
	}
	return string(hash), nil
}

func checkPasswordHash(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
