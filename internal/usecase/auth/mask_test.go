package auth

import (
	"testing"

	domain "docshare/backend/internal/domain/auth"

	"github.com/stretchr/testify/assert"
)

func TestMaskContact(t *testing.T) {
	tests := []struct {
		name string
		user domain.User
		want string
	}{
		{"email", domain.User{Email: "alice@example.com", TwoFactorMethod: domain.TwoFactorEmail}, "al***@example.com"},
		{"short local part", domain.User{Email: "a@example.com", TwoFactorMethod: domain.TwoFactorEmail}, "a***@example.com"},
		{"sms falls back to email", domain.User{Email: "bob@example.com", TwoFactorMethod: domain.TwoFactorSMS}, "bo***@example.com"},
		{"authenticator app", domain.User{Email: "carol@example.com", TwoFactorMethod: domain.TwoFactorApp}, "Authenticator App"},
		{"malformed address", domain.User{Email: "nobody", TwoFactorMethod: domain.TwoFactorEmail}, "***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskContact(&tt.user))
		})
	}
}
