package token

import (
	"errors"
	"fmt"
	"time"

	domain "docshare/backend/internal/domain/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned when the signed token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignature covers malformed, tampered or wrongly signed tokens.
	ErrTokenSignature = errors.New("token signature invalid")
)

// Manager issues and decodes signed identity tokens and handles the opaque
// secrets stored in the ledger.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewManager constructs a manager with the provided signing secret.
func NewManager(secret, issuer string) *Manager {
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Claims represents token claims.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Encode creates a signed JWT carrying the user id and role.
func (m *Manager) Encode(userID string, role domain.UserRole, ttl time.Duration) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode parses and validates the token returning the carried identity.
func (m *Manager) Decode(tokenString string) (domain.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrTokenExpired
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrTokenSignature, err)
	}
	if !token.Valid || claims.UserID == "" {
		return domain.Identity{}, ErrTokenSignature
	}
	return domain.Identity{UserID: claims.UserID, Role: domain.UserRole(claims.Role)}, nil
}
