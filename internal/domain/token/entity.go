// Package token models the ledger of issued tokens.
package token

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no usable ledger record matched.
	ErrNotFound = errors.New("token not found")
	// ErrActiveExists signals a concurrent issuance already holds the
	// single active slot for an (owner, type) pair.
	ErrActiveExists = errors.New("active token already exists")
)

// Type classifies a ledger record.
type Type string

const (
	TypeAccess            Type = "Access"
	TypeRefresh           Type = "Refresh"
	TypeEmailVerification Type = "EmailVerification"
	TypePasswordReset     Type = "PasswordReset"
	TypeTwoFactor         Type = "TwoFactor"
)

// SingleUse reports whether at most one record of this type may be active
// per owner.
func (t Type) SingleUse() bool {
	switch t {
	case TypeEmailVerification, TypePasswordReset, TypeTwoFactor:
		return true
	default:
		return false
	}
}

// Token is a ledger record. Only the digest of the secret is kept.
type Token struct {
	ID        string
	OwnerID   string
	Type      Type
	Digest    []byte
	Device    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Active    bool
}

// Usable reports whether the record can still be presented. Expiry is
// derived from the clock; Active is never flipped by time alone.
func (t *Token) Usable(now time.Time) bool {
	return t != nil && t.Active && now.Before(t.ExpiresAt)
}
