package httpserver

import (
	"errors"
	"net/http"
	"time"

	authdomain "docshare/backend/internal/domain/auth"
	authusecase "docshare/backend/internal/usecase/auth"
	userusecase "docshare/backend/internal/usecase/user"

	"go.uber.org/zap"
)

const genericLinkAck = "If the email exists, a message with further instructions has been sent."

type loginResponse struct {
	envelope
	Token             string           `json:"accessToken,omitempty"`
	ExpiresAt         *time.Time       `json:"expiresAt,omitempty"`
	User              *authdomain.User `json:"user,omitempty"`
	RequiresTwoFactor bool             `json:"requiresTwoFactor,omitempty"`
	TempToken         string           `json:"tempToken,omitempty"`
	TwoFactorMethod   string           `json:"twoFactorMethod,omitempty"`
	MaskedContact     string           `json:"maskedContact,omitempty"`
}

// newLoginResponse reports success only once a session exists. A pending 2FA
// challenge is answered with success false and the challenge fields.
func newLoginResponse(message string, res *authusecase.LoginResult) loginResponse {
	out := loginResponse{
		envelope:          envelope{Success: !res.RequiresTwoFactor, Message: message},
		Token:             res.Token,
		User:              res.User,
		RequiresTwoFactor: res.RequiresTwoFactor,
		TempToken:         res.TempToken,
		TwoFactorMethod:   string(res.Method),
		MaskedContact:     res.MaskedContact,
	}
	if !res.ExpiresAt.IsZero() {
		exp := res.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		FullName string `json:"fullName"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.authService.Register(r.Context(), authusecase.RegisterInput{
		Email:    payload.Email,
		Username: payload.Username,
		FullName: payload.FullName,
		Password: payload.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		envelope
		User *authdomain.User `json:"user"`
	}{envelope{Success: true, Message: "registration successful"}, user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Login     string `json:"login"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Device    string `json:"device"`
		DeviceTag string `json:"deviceTag"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	login := payload.Login
	if login == "" {
		login = payload.Email
	}
	device := firstNonEmpty(payload.DeviceTag, payload.Device, r.UserAgent())

	res, err := s.authService.Login(r.Context(), authdomain.Credentials{
		Login:    login,
		Password: payload.Password,
		Device:   device,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	message := "login successful"
	if res.RequiresTwoFactor {
		message = "two-factor verification required"
	}
	writeJSON(w, http.StatusOK, newLoginResponse(message, res))
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token      string `json:"token"`
		UserDevice string `json:"userDevice"`
		DeviceTag  string `json:"deviceTag"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	device := firstNonEmpty(payload.DeviceTag, payload.UserDevice, r.UserAgent())

	res, err := s.authService.LoginWithGoogle(r.Context(), payload.Token, device)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse("google login successful", res))
}

func (s *Server) handleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TempToken string `json:"tempToken"`
		Code      string `json:"code"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.authService.VerifyTwoFactor(r.Context(), payload.TempToken, payload.Code)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse("two-factor verification successful", res))
}

func (s *Server) handleResendTwoFactor(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TempToken string `json:"tempToken"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.authService.ResendTwoFactor(r.Context(), payload.TempToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		TwoFactorMethod string `json:"twoFactorMethod"`
		MaskedContact   string `json:"maskedContact"`
		NextResendIn    int    `json:"nextResendInSeconds"`
	}{
		envelope:        envelope{Success: true, Message: "a new verification code has been sent"},
		TwoFactorMethod: string(res.Method),
		MaskedContact:   res.MaskedContact,
		NextResendIn:    int(res.NextResendIn / time.Second),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"authenticated": true,
		"userId":        caller.Identity.UserID,
		"role":          caller.Identity.Role,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	// The body may name the token to revoke; it defaults to the presented one.
	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decodeJSON(w, r, &payload); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target := firstNonEmpty(payload.AccessToken, caller.token)

	if err := s.authService.Logout(r.Context(), caller.Identity, target); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeOK(w, "logged out")
}

func (s *Server) handleMyProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := s.userService.Profile(r.Context(), caller.Identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var payload struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		FullName  string `json:"fullName"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The profile edited is always the caller's own.
	user, err := s.userService.UpdateProfile(r.Context(), caller.Identity.UserID, userusecase.ProfileInput{
		Email:     payload.Email,
		Username:  payload.Username,
		FullName:  payload.FullName,
		AvatarURL: payload.AvatarURL,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		User *authdomain.User `json:"user"`
	}{envelope{Success: true, Message: "profile updated"}, user})
}

func (s *Server) handleUpdateTwoFactor(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var payload struct {
		Enabled bool   `json:"enabled"`
		Method  string `json:"method"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.userService.UpdateTwoFactor(r.Context(), caller.Identity.UserID, userusecase.TwoFactorInput{
		Enabled: payload.Enabled,
		Method:  payload.Method,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	users, err := s.userService.List(r.Context(), caller.Identity, userusecase.Filter{
		Role: r.URL.Query().Get("role"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (s *Server) handleGenerateVerifyEmailToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.authService.RequestEmailVerification(r.Context(), payload.Email); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeOK(w, genericLinkAck)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := s.authService.ConsumeEmailVerification(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeOK(w, "email verified")
}

func (s *Server) handleGenerateResetPasswordToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.authService.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeOK(w, genericLinkAck)
}

func (s *Server) handleVerifyResetPasswordToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	valid, err := s.authService.CheckResetToken(r.Context(), payload.Token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status, message := http.StatusOK, "token is valid"
	if !valid {
		status, message = http.StatusUnauthorized, authdomain.ErrTokenInvalid.Error()
	}
	writeJSON(w, status, struct {
		envelope
		Valid bool `json:"valid"`
	}{envelope{Success: valid, Message: message}, valid})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.authService.ResetPassword(r.Context(), payload.Token, payload.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeOK(w, "password changed")
}

func (s *Server) handleCheckUserVerified(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	verified, err := s.userService.IsVerified(r.Context(), caller.Identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isVerified": verified})
}

// writeServiceError maps usecase errors to HTTP responses. Login and 2FA
// rejections are reported with 200 and success=false.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrChallengeInvalid),
		errors.Is(err, authdomain.ErrRateLimited):
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: err.Error()})
	case errors.Is(err, authdomain.ErrValidation),
		errors.Is(err, authdomain.ErrInvalidRole),
		errors.Is(err, authdomain.ErrInvalidTwoFactorMethod):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authdomain.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, authdomain.ErrTokenInvalid.Error())
	case errors.Is(err, authdomain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, authdomain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, authdomain.ErrEmailExists), errors.Is(err, authdomain.ErrUsernameExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
