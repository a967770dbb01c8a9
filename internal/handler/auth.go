package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/food-delivery-api/internal/auth"
	"github.com/iliyamo/food-delivery-api/internal/config"
	"github.com/iliyamo/food-delivery-api/internal/middleware"
	"github.com/iliyamo/food-delivery-api/internal/model"
	"github.com/iliyamo/food-delivery-api/internal/queue"
	"github.com/iliyamo/food-delivery-api/internal/repository"
	"github.com/iliyamo/food-delivery-api/internal/utils"
)

// Verification-code policy.  Counts and windows follow the product rules:
// five requests per cycle, then a 24-hour lock.
const (
	codeLength       = 6
	emailCodeTTL     = 5 * time.Minute
	resetCodeTTL     = 10 * time.Minute
	phoneCodeTTL     = 5 * time.Minute
	codeRequestLimit = 5
	codeLockDuration = 24 * time.Hour
)

// UserStore is the slice of the user repository the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, u *model.User) (uint64, error)
	FindByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	Activate(ctx context.Context, id uint64) error
	SetEmailCode(ctx context.Context, id uint64, code string, expires time.Time, requests int) error
	LockEmailCodeRequests(ctx context.Context, id uint64, until time.Time) error
	SetResetCode(ctx context.Context, id uint64, code string, expires time.Time) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	SetPhoneCode(ctx context.Context, id uint64, code string, expires time.Time, requests int) error
	LockPhoneCodeRequests(ctx context.Context, id uint64, until time.Time) error
	MarkPhoneVerified(ctx context.Context, id uint64) error
}

// SessionStore is the slice of the session repository the auth endpoints need.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	Find(ctx context.Context, id string) (*model.Session, error)
	RotateJTI(ctx context.Context, id, oldJTI, newJTI string) error
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Session, error)
}

// Notifier delivers verification codes.  Implementations are fire-and-forget;
// a delivery failure never fails the request that produced the code.
type Notifier interface {
	Send(ctx context.Context, ev queue.NotificationEvent) error
}

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Sessions SessionStore
	Tokens   *auth.TokenManager
	Notify   Notifier
}

func NewAuthHandler(cfg config.Config, u UserStore, s SessionStore, tm *auth.TokenManager, n Notifier) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Sessions: s, Tokens: tm, Notify: n}
}

// ----- DTOs -----

type registerReq struct {
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Password    string `json:"password"`
}
type loginReq struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type emailCodeReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}
type resetPasswordReq struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}
type phoneCodeReq struct {
	Code string `json:"code"`
}

// ----- response helpers -----

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "error": status, "message": msg})
}

func okMsg(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": true, "message": msg})
}

// issueSession creates a session row for the user and mints the token pair
// bound to it.  Shared by password login and the OAuth callback so both
// methods end in the identical session model.
func issueSession(ctx context.Context, c echo.Context, sessions SessionStore, tm *auth.TokenManager, u *model.User) (access, refresh string, err error) {
	sessionID := uuid.NewString()
	refresh, jti, exp, err := tm.IssueRefresh(sessionID)
	if err != nil {
		return "", "", err
	}
	sess := &model.Session{
		ID:              sessionID,
		UserID:          u.ID,
		RefreshTokenJTI: jti,
		ExpiresAt:       exp,
		UserAgent:       nullString(c.Request().UserAgent()),
		IPAddress:       nullString(c.RealIP()),
	}
	if err := sessions.Create(ctx, sess); err != nil {
		return "", "", err
	}
	// New sessions always start at version 1.
	access, _, err = tm.IssueAccess(u, sessionID, 1)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// ----- registration & verification -----

// Register creates an inactive customer account and queues the email
// verification code.  The account cannot log in until the email is verified.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Name = strings.TrimSpace(req.Name)
	if req.PhoneNumber == "" || req.Email == "" || req.Name == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "phone number, email, name and password are required")
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "registration failed")
	}
	code, err := utils.VerificationCode(codeLength)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "registration failed")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	u := &model.User{
		PhoneNumber:           req.PhoneNumber,
		Email:                 req.Email,
		Name:                  req.Name,
		PasswordHash:          nullString(hash),
		Role:                  model.RoleCustomer,
		IsActive:              false,
		EmailVerificationCode: nullString(code),
		EmailCodeExpiresAt:    nullTime(now.Add(emailCodeTTL)),
		EmailCodeRequests:     1,
	}
	if _, err := h.Users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrPhoneExists):
			return fail(c, http.StatusConflict, "phone number already in use")
		case errors.Is(err, repository.ErrEmailExists):
			return fail(c, http.StatusConflict, "email already in use")
		}
		return fail(c, http.StatusInternalServerError, "registration failed")
	}

	h.sendCode(ctx, queue.ChannelEmail, req.Email, queue.TemplateVerifyEmail, code)
	return okMsg(c, http.StatusCreated, "registered successfully, please verify your email")
}

// VerifyEmail checks the emailed code and activates the account.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req emailCodeReq
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Code == "" {
		return fail(c, http.StatusBadRequest, "email and code are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil || !u.EmailVerificationCode.Valid || u.EmailVerificationCode.String != req.Code {
		return fail(c, http.StatusBadRequest, "invalid code or user not found")
	}
	if !u.EmailCodeExpiresAt.Valid || time.Now().UTC().After(u.EmailCodeExpiresAt.Time) {
		return fail(c, http.StatusBadRequest, "code has expired")
	}
	if err := h.Users.Activate(ctx, u.ID); err != nil {
		return fail(c, http.StatusInternalServerError, "activation failed")
	}
	return okMsg(c, http.StatusOK, "email verified, account activated")
}

// ResendVerification re-issues the email verification code, rate limited to
// codeRequestLimit requests before a 24-hour lock.  Responds identically for
// unknown emails so the endpoint cannot be used to probe accounts.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailCodeReq
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return fail(c, http.StatusBadRequest, "email is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		return okMsg(c, http.StatusOK, "if the email is registered, a new code has been sent")
	}
	if u.IsActive {
		return fail(c, http.StatusBadRequest, "account is already active")
	}

	now := time.Now().UTC()
	if u.EmailCodeLockedUntil.Valid && u.EmailCodeLockedUntil.Time.After(now) {
		return fail(c, http.StatusTooManyRequests, "too many requests, try again later")
	}
	if u.EmailCodeRequests >= codeRequestLimit {
		if err := h.Users.LockEmailCodeRequests(ctx, u.ID, now.Add(codeLockDuration)); err != nil {
			return fail(c, http.StatusInternalServerError, "request failed")
		}
		return fail(c, http.StatusTooManyRequests, "request limit reached, locked for 24 hours")
	}

	code, err := utils.VerificationCode(codeLength)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "request failed")
	}
	if err := h.Users.SetEmailCode(ctx, u.ID, code, now.Add(emailCodeTTL), u.EmailCodeRequests+1); err != nil {
		return fail(c, http.StatusInternalServerError, "request failed")
	}
	h.sendCode(ctx, queue.ChannelEmail, u.Email, queue.TemplateVerifyEmail, code)
	return okMsg(c, http.StatusOK, "if the email is registered, a new code has been sent")
}

// RequestPasswordReset queues a reset code.  Always answers success so the
// endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req emailCodeReq
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return fail(c, http.StatusBadRequest, "email is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		return okMsg(c, http.StatusOK, "if the email exists, reset instructions have been sent")
	}

	code, err := utils.VerificationCode(codeLength)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "request failed")
	}
	if err := h.Users.SetResetCode(ctx, u.ID, code, time.Now().UTC().Add(resetCodeTTL)); err != nil {
		return fail(c, http.StatusInternalServerError, "request failed")
	}
	h.sendCode(ctx, queue.ChannelEmail, u.Email, queue.TemplateResetPassword, code)
	return okMsg(c, http.StatusOK, "if the email exists, reset instructions have been sent")
}

// ResetPassword sets a new password after checking the emailed reset code.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Code == "" || req.NewPassword == "" {
		return fail(c, http.StatusBadRequest, "email, code and new password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil || !u.ResetPasswordCode.Valid || u.ResetPasswordCode.String != req.Code ||
		!u.ResetCodeExpiresAt.Valid || time.Now().UTC().After(u.ResetCodeExpiresAt.Time) {
		return fail(c, http.StatusBadRequest, "invalid or expired code")
	}

	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "reset failed")
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fail(c, http.StatusInternalServerError, "reset failed")
	}
	return okMsg(c, http.StatusOK, "password has been reset")
}

// ----- login / refresh / logout -----

// Login verifies credentials and opens a new session.  Lookup and password
// failures are indistinguishable to the caller.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "identifier and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respond(c, auth.ErrInvalidCredentials)
		}
		return respond(c, auth.ErrInternal)
	}
	// An account owned by an OAuth provider must never authenticate by
	// password, even if it somehow carries a hash.
	if u.OAuthProvider.Valid && u.OAuthProvider.String != "" {
		return fail(c, auth.ErrWrongAuthMethod.Status, "please log in using "+u.OAuthProvider.String)
	}
	if !utils.VerifyPassword(u.PasswordHash.String, req.Password) {
		return respond(c, auth.ErrInvalidCredentials)
	}
	if !u.IsActive {
		return respond(c, auth.ErrAccountInactive)
	}
	if u.IsBanned {
		return respond(c, auth.ErrAccountBanned)
	}

	access, refresh, err := issueSession(ctx, c, h.Sessions, h.Tokens, u)
	if err != nil {
		return respond(c, auth.ErrInternal)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"access_token":  access,
		"refresh_token": refresh,
		"user":          u.Public(),
	})
}

// Refresh rotates the refresh token: the presented token's JTI must match the
// session's stored value, and the swap to the new JTI is a compare-and-swap
// so each refresh token is redeemable exactly once even under concurrent
// requests.  All failure causes collapse into the same answer.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refresh_token is required")
	}

	claims, aerr := h.Tokens.ParseRefresh(strings.TrimSpace(req.RefreshToken))
	if aerr != nil {
		return respond(c, aerr)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Sessions.Find(ctx, claims.SessionID)
	if err != nil {
		return respond(c, auth.ErrInvalidSession)
	}
	if !sess.Live(time.Now().UTC()) || sess.RefreshTokenJTI != claims.JTI() {
		return respond(c, auth.ErrInvalidSession)
	}

	u, err := h.Users.FindByID(ctx, sess.UserID)
	if err != nil {
		return respond(c, auth.ErrInvalidSession)
	}

	newRefresh, newJTI, _, err := h.Tokens.IssueRefresh(sess.ID)
	if err != nil {
		return respond(c, auth.ErrInternal)
	}
	// The CAS is the authoritative single-use check: if another refresh won
	// the race between our read and this write, zero rows match and the
	// presented token is treated as already spent.
	if err := h.Sessions.RotateJTI(ctx, sess.ID, claims.JTI(), newJTI); err != nil {
		if errors.Is(err, repository.ErrStaleRotation) {
			return respond(c, auth.ErrInvalidSession)
		}
		return respond(c, auth.ErrInternal)
	}

	access, _, err := h.Tokens.IssueAccess(u, sess.ID, sess.Version)
	if err != nil {
		return respond(c, auth.ErrInternal)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"access_token":  access,
		"refresh_token": newRefresh,
	})
}

// Logout revokes the calling session.  The session id comes from the access
// token payload resolved by the gate.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return respond(c, auth.ErrInvalidSession)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Revoke(ctx, id.SessionID); err != nil {
		return respond(c, auth.ErrInternal)
	}
	return okMsg(c, http.StatusOK, "logged out successfully")
}

// LogoutAll revokes every live session of the calling user.  The revoking
// write commits before this responds, so no old access token for this user
// passes the gate afterwards.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return respond(c, auth.ErrInvalidSession)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.RevokeAllForUser(ctx, id.UserID); err != nil {
		return respond(c, auth.ErrInternal)
	}
	return okMsg(c, http.StatusOK, "logged out from all sessions successfully")
}

// Me returns the calling user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return respond(c, auth.ErrInvalidSession)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByID(ctx, id.UserID)
	if err != nil {
		return respond(c, auth.ErrNotFound)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u.Public()})
}

// ListSessions returns the calling user's sessions so they can audit which
// devices hold credentials.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return respond(c, auth.ErrInvalidSession)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessions, err := h.Sessions.ListByUser(ctx, id.UserID)
	if err != nil {
		return respond(c, auth.ErrInternal)
	}
	out := make([]model.PublicSession, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].Public())
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "sessions": out})
}

// ----- phone verification (protected) -----

// RequestPhoneCode queues an SMS OTP for the calling user, rate limited the
// same way as email codes.
func (h *AuthHandler) RequestPhoneCode(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return respond(c, auth.ErrInvalidSession)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByID(ctx, id.UserID)
	if err != nil {
		return respond(c, auth.ErrNotFound)
	}
	if u.PhoneVerified {
		return okMsg(c, http.StatusOK, "phone number already verified")
	}

	now := time.Now().UTC()
	if u.PhoneCodeLockedUntil.Valid && u.PhoneCodeLockedUntil.Time.After(now) {
		return fail(c, http.StatusTooManyRequests, "too many requests, try again later")
	}
	if u.PhoneCodeRequests >= codeRequestLimit {
		if err := h.Users.LockPhoneCodeRequests(ctx, u.ID, now.Add(codeLockDuration)); err != nil {
			return fail(c, http.StatusInternalServerError, "request failed")
		}
		return fail(c, http.StatusTooManyRequests, "request limit reached, locked for 24 hours")
	}

	code, err := utils.NumericOTP(codeLength)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "request failed")
	}
	if err := h.Users.SetPhoneCode(ctx, u.ID, code, now.Add(phoneCodeTTL), u.PhoneCodeRequests+1); err != nil {
		return fail(c, http.StatusInternalServerError, "request failed")
	}
	h.sendCode(ctx, queue.ChannelSMS, u.PhoneNumber, queue.TemplateVerifyPhone, code)
	return okMsg(c, http.StatusOK, "verification code sent")
}

// VerifyPhone confirms the SMS OTP for the calling user.
func (h *AuthHandler) VerifyPhone(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return respond(c, auth.ErrInvalidSession)
	}
	var req phoneCodeReq
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return fail(c, http.StatusBadRequest, "verification code is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.FindByID(ctx, id.UserID)
	if err != nil {
		return respond(c, auth.ErrNotFound)
	}
	if !u.PhoneVerificationCode.Valid || u.PhoneVerificationCode.String != req.Code ||
		!u.PhoneCodeExpiresAt.Valid || time.Now().UTC().After(u.PhoneCodeExpiresAt.Time) {
		return fail(c, http.StatusBadRequest, "invalid or expired code")
	}
	if err := h.Users.MarkPhoneVerified(ctx, u.ID); err != nil {
		return fail(c, http.StatusInternalServerError, "verification failed")
	}
	return okMsg(c, http.StatusOK, "phone number verified")
}

// ----- helpers -----

// sendCode hands a code to the notification queue.  Best effort by design.
func (h *AuthHandler) sendCode(ctx context.Context, channel, destination, template, code string) {
	ev := queue.NotificationEvent{
		Channel:     channel,
		Destination: destination,
		Template:    template,
		Code:        code,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.Notify.Send(ctx, ev); err != nil {
		log.Printf("notify: send %s code to %s failed: %v", template, destination, err)
	}
}

func respond(c echo.Context, e *auth.Error) error {
	return middleware.RespondAuthError(c, e)
}

func nullString(s string) (ns sql.NullString) {
	if s != "" {
		ns.String, ns.Valid = s, true
	}
	return
}

func nullTime(t time.Time) (nt sql.NullTime) {
	nt.Time, nt.Valid = t, true
	return
}
