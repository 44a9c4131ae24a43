package auth

import (
	"strings"

	domain "docshare/backend/internal/domain/auth"
)

const authenticatorContact = "Authenticator App"

// maskContact hides most of the destination a code was sent to.
func maskContact(u *domain.User) string {
	if u.TwoFactorMethod == domain.TwoFactorApp {
		return authenticatorContact
	}
	return maskEmail(u.Email)
}

// maskEmail keeps the first two characters of the local part.
func maskEmail(email string) string {
	local, host, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***@" + host
}
