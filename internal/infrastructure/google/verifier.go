// Package google verifies Google Sign-In ID tokens.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "docshare/backend/internal/domain/auth"

	"github.com/hashicorp/cap/jwt"
)

// CertsURL is Google's published JWKS endpoint for ID tokens.
const CertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var (
	// ErrInvalidToken covers bad signatures, expired tokens, wrong audience
	// and wrong issuer.
	ErrInvalidToken = errors.New("google id token invalid")
	// ErrUnverifiedEmail is returned for accounts whose email Google has not
	// confirmed.
	ErrUnverifiedEmail = errors.New("google email not verified")
)

var issuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// Verifier checks ID tokens against a key set and a client id.
type Verifier struct {
	validator *jwt.Validator
	clientID  string
}

// NewVerifier builds a Verifier backed by Google's remote key set. Keys are
// fetched lazily on first use.
func NewVerifier(ctx context.Context, clientID string) (*Verifier, error) {
	keySet, err := jwt.NewJSONWebKeySet(ctx, CertsURL, "")
	if err != nil {
		return nil, fmt.Errorf("google key set: %w", err)
	}
	return NewVerifierWithKeySet(keySet, clientID)
}

// NewVerifierWithKeySet builds a Verifier around an arbitrary key set.
func NewVerifierWithKeySet(keySet jwt.KeySet, clientID string) (*Verifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("google client id is required")
	}
	validator, err := jwt.NewValidator(keySet)
	if err != nil {
		return nil, fmt.Errorf("google validator: %w", err)
	}
	return &Verifier{validator: validator, clientID: clientID}, nil
}

// Verify validates rawToken and returns the identity it asserts.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*domain.ExternalIdentity, error) {
	claims, err := v.validator.Validate(ctx, rawToken, jwt.Expected{
		Audiences:         []string{v.clientID},
		SigningAlgorithms: []jwt.Alg{jwt.RS256},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	iss, _ := claims["iss"].(string)
	if !issuers[iss] {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, iss)
	}

	id := &domain.ExternalIdentity{
		Subject:       stringClaim(claims, "sub"),
		Email:         strings.ToLower(stringClaim(claims, "email")),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          stringClaim(claims, "name"),
		Picture:       stringClaim(claims, "picture"),
	}
	if id.Email == "" {
		return nil, fmt.Errorf("%w: email claim missing", ErrInvalidToken)
	}
	if !id.EmailVerified {
		return nil, ErrUnverifiedEmail
	}
	return id, nil
}

func stringClaim(claims map[string]interface{}, name string) string {
	s, _ := claims[name].(string)
	return s
}

// boolClaim accepts both JSON booleans and the "true" string some Google
// tokens carry.
func boolClaim(claims map[string]interface{}, name string) bool {
	switch v := claims[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
