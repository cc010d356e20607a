// Package models defines the records persisted by the account store.
package models

import "time"

type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Account is a registered identity. VerificationToken and ResetToken hold
// SHA-256 digests of the tokens mailed to the owner, never the tokens.
type Account struct {
	ID           string
	Email        string
	PasswordHash string

	Title       string
	FirstName   string
	LastName    string
	AcceptTerms bool
	Role        Role

	VerificationToken *string
	Verified          *time.Time

	ResetToken        *string
	ResetTokenExpires *time.Time
	PasswordReset     *time.Time

	Created time.Time
	Updated *time.Time
}

// IsVerified is true once the email was confirmed or a password reset
// proved control of the mailbox.
func (a *Account) IsVerified() bool {
	return a.Verified != nil || a.PasswordReset != nil
}

// HasActiveResetToken reports whether a reset digest is set and unexpired at now.
func (a *Account) HasActiveResetToken(now time.Time) bool {
	return a.ResetToken != nil && a.ResetTokenExpires != nil && now.Before(*a.ResetTokenExpires)
}

// AccountDetails is the public projection of an Account.
type AccountDetails struct {
	ID         string     `json:"id"`
	Title      string     `json:"title,omitempty"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	Created    time.Time  `json:"created"`
	Updated    *time.Time `json:"updated,omitempty"`
	IsVerified bool       `json:"isVerified"`
}

func (a *Account) Details() AccountDetails {
	return AccountDetails{
		ID:         a.ID,
		Title:      a.Title,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		Role:       a.Role,
		Created:    a.Created,
		Updated:    a.Updated,
		IsVerified: a.IsVerified(),
	}
}
