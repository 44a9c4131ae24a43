package httpserver

import "net/http"

type route struct {
	method     string
	path       string
	capability Capability
	adminOnly  bool
	handler    http.HandlerFunc
}

func (rt route) pattern() string {
	return rt.method + " " + rt.path
}

func (s *Server) routes() []route {
	return []route{
		{method: http.MethodGet, path: "/health", capability: Public, handler: s.handleHealth},
		{method: http.MethodGet, path: "/metrics", capability: Public, handler: s.metrics.Handler().ServeHTTP},

		{method: http.MethodPost, path: "/api/users/public/request-login", capability: Public, handler: s.handleLogin},
		{method: http.MethodPost, path: "/api/users/public/request-login-google", capability: Public, handler: s.handleGoogleLogin},
		{method: http.MethodPost, path: "/api/users/public/verify-2fa", capability: Public, handler: s.handleVerifyTwoFactor},
		{method: http.MethodPost, path: "/api/users/public/resend-2fa", capability: Public, handler: s.handleResendTwoFactor},
		{method: http.MethodPost, path: "/api/users/public/request-register", capability: Public, handler: s.handleRegister},
		{method: http.MethodGet, path: "/api/users/public/session", capability: OptionalAuth, handler: s.handleSession},
		{method: http.MethodPost, path: "/api/users/request-logout", capability: RequiresAuth, handler: s.handleLogout},
		{method: http.MethodGet, path: "/api/users/my-profile", capability: RequiresAuth, handler: s.handleMyProfile},
		{method: http.MethodPut, path: "/api/users/update-user", capability: RequiresAuth, handler: s.handleUpdateUser},
		{method: http.MethodPut, path: "/api/users/two-factor", capability: RequiresAuth, handler: s.handleUpdateTwoFactor},
		{method: http.MethodGet, path: "/api/admin/users", capability: RequiresAuth, adminOnly: true, handler: s.handleAdminUsers},

		{method: http.MethodPost, path: "/api/verification/public/generate-verify-email-token", capability: Public, handler: s.handleGenerateVerifyEmailToken},
		{method: http.MethodGet, path: "/api/verification/public/verify-email", capability: Public, handler: s.handleVerifyEmail},
		{method: http.MethodPost, path: "/api/verification/public/generate-reset-password-token", capability: Public, handler: s.handleGenerateResetPasswordToken},
		{method: http.MethodPost, path: "/api/verification/public/verify-reset-password-token", capability: Public, handler: s.handleVerifyResetPasswordToken},
		{method: http.MethodPost, path: "/api/verification/public/change-password", capability: Public, handler: s.handleChangePassword},
		{method: http.MethodGet, path: "/api/verification/check-user-verified", capability: RequiresAuth, handler: s.handleCheckUserVerified},
	}
}

func (s *Server) registerRoutes() {
	for _, rt := range s.routes() {
		pattern := rt.pattern()
		s.router.Handle(pattern, instrument(s.gate(rt, rt.handler), s.metrics, pattern))
	}
}
