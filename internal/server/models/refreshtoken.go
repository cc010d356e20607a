package models

import "time"

// RefreshToken is one ledger record. TokenHash is the SHA-256 digest of the
// bearer value; ReplacedByID points at the successor issued by a rotation.
type RefreshToken struct {
	ID           string
	AccountID    string
	TokenHash    string
	CreatedByIP  string
	Created      time.Time
	Expires      time.Time
	Revoked      *time.Time
	RevokedByIP  *string
	ReplacedByID *string
}

// IsExpired treats the expiry instant itself as expired.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.Expires)
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.Revoked == nil && !t.IsExpired(now)
}

// RefreshTokenDetails is the caller-facing view of a ledger record.
type RefreshTokenDetails struct {
	ID           string     `json:"id"`
	CreatedByIP  string     `json:"createdByIp"`
	Created      time.Time  `json:"created"`
	Expires      time.Time  `json:"expires"`
	Revoked      *time.Time `json:"revoked,omitempty"`
	RevokedByIP  *string    `json:"revokedByIp,omitempty"`
	ReplacedByID *string    `json:"replacedBy,omitempty"`
	IsExpired    bool       `json:"isExpired"`
	IsActive     bool       `json:"isActive"`
}

func (t *RefreshToken) Details(now time.Time) RefreshTokenDetails {
	return RefreshTokenDetails{
		ID:           t.ID,
		CreatedByIP:  t.CreatedByIP,
		Created:      t.Created,
		Expires:      t.Expires,
		Revoked:      t.Revoked,
		RevokedByIP:  t.RevokedByIP,
		ReplacedByID: t.ReplacedByID,
		IsExpired:    t.IsExpired(now),
		IsActive:     t.IsActive(now),
	}
}
