package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authdomain "docshare/backend/internal/domain/auth"

	"go.uber.org/zap"
)

// Capability states what a route needs from the Authorization header.
type Capability int

const (
	// Public routes ignore the Authorization header entirely.
	Public Capability = iota
	// OptionalAuth routes attach a caller when a valid credential is offered.
	// An offered credential that fails validation is still rejected.
	OptionalAuth
	// RequiresAuth routes reject requests without a valid credential.
	RequiresAuth
)

func (c Capability) String() string {
	switch c {
	case Public:
		return "public"
	case OptionalAuth:
		return "optional"
	case RequiresAuth:
		return "required"
	default:
		return "unknown"
	}
}

// Caller is the authenticated principal of a request.
type Caller struct {
	Identity authdomain.Identity
	// TokenID is the ledger record backing the presented token.
	TokenID string
	token   string
}

type ctxKeyCaller struct{}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKeyCaller{}, c)
}

// callerFromContext returns the caller attached by the gate, if any.
func callerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKeyCaller{}).(Caller)
	return c, ok
}

var (
	errMissingScheme = errors.New("authorization scheme must be Bearer")
	errEmptyToken    = errors.New("bearer token is empty")
)

// parseBearer extracts the token from an Authorization header value.
func parseBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errMissingScheme
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", errEmptyToken
	}
	return token, nil
}

// gate enforces rt's capability before next runs. Header format problems are
// rejected before any storage access.
func (s *Server) gate(rt route, next http.Handler) http.Handler {
	if rt.capability == Public {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if rt.capability == RequiresAuth {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		bearer, err := parseBearer(header)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		session, err := s.authService.Authenticate(r.Context(), bearer)
		if err != nil {
			if errors.Is(err, authdomain.ErrDependency) {
				s.logger.Error("authenticate request",
					zap.String("route", rt.pattern()),
					zap.Stringer("capability", rt.capability),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if rt.adminOnly && !session.Identity.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin privileges required")
			return
		}

		ctx := withCaller(r.Context(), Caller{
			Identity: session.Identity,
			TokenID:  session.TokenID,
			token:    bearer,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
