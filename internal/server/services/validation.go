package services

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
)

const (
	minNameLength     = 2
	maxNameLength     = 50
	minPasswordLength = 8
)

var titles = map[string]struct{}{
	"Mr": {}, "Mrs": {}, "Miss": {}, "Ms": {}, "Dr": {},
}

// normalizeEmail trims and lower-cases an address so lookups and the unique
// index agree on one spelling.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return common.ErrInvalidInput.WithMessage("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return common.ErrInvalidInput.WithMessage("email is invalid")
	}
	return nil
}

func validateName(field, value string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < minNameLength || n > maxNameLength {
		return common.ErrInvalidInput.WithMessage(field + " must be between 2 and 50 characters")
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return nil
	}
	if _, ok := titles[title]; !ok {
		return common.ErrInvalidInput.WithMessage("title must be one of Mr, Mrs, Miss, Ms, Dr")
	}
	return nil
}

// validatePassword enforces the minimum length and the letter and digit rule.
func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return common.ErrWeakPassword
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return common.ErrWeakPassword
	}
	return nil
}

// profile is the part of an account a caller fills in.
type profile struct {
	Title     string
	FirstName string
	LastName  string
	Email     string
}

func (p profile) validate() error {
	if err := validateTitle(p.Title); err != nil {
		return err
	}
	if err := validateName("first name", p.FirstName); err != nil {
		return err
	}
	if err := validateName("last name", p.LastName); err != nil {
		return err
	}
	return validateEmail(p.Email)
}

// hashPassword maps hasher failures onto service errors.
func hashPassword(h cryptox.Hasher, password string) (string, error) {
	digest, err := h.Hash(password)
	if err != nil {
		if errors.Is(err, cryptox.ErrPasswordTooLong) {
			return "", common.ErrInvalidInput.WithMessage("password must be at most 72 bytes")
		}
		return "", common.Wrap(common.ErrorInternal, err)
	}
	return digest, nil
}
