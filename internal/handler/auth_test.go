package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/food-delivery-api/internal/auth"
	"github.com/iliyamo/food-delivery-api/internal/config"
	"github.com/iliyamo/food-delivery-api/internal/model"
	"github.com/iliyamo/food-delivery-api/internal/queue"
	"github.com/iliyamo/food-delivery-api/internal/repository"
	"github.com/iliyamo/food-delivery-api/internal/utils"
)

// ----- in-memory fakes -----

type fakeUsers struct {
	byID   map[uint64]*model.User
	nextID uint64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uint64]*model.User{}, nextID: 1}
}

func (f *fakeUsers) add(u *model.User) *model.User {
	if u.ID == 0 {
		u.ID = f.nextID
		f.nextID++
	}
	f.byID[u.ID] = u
	return u
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) (uint64, error) {
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
		if existing.PhoneNumber == u.PhoneNumber {
			return 0, repository.ErrPhoneExists
		}
	}
	f.add(u)
	return u.ID, nil
}

func (f *fakeUsers) FindByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == strings.ToLower(identifier) || u.PhoneNumber == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByID(_ context.Context, id uint64) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) Activate(_ context.Context, id uint64) error {
	u := f.byID[id]
	u.IsActive = true
	u.EmailVerificationCode = nullString("")
	u.EmailCodeRequests = 0
	return nil
}

func (f *fakeUsers) SetEmailCode(_ context.Context, id uint64, code string, expires time.Time, requests int) error {
	u := f.byID[id]
	u.EmailVerificationCode = nullString(code)
	u.EmailCodeExpiresAt = nullTime(expires)
	u.EmailCodeRequests = requests
	return nil
}

func (f *fakeUsers) LockEmailCodeRequests(_ context.Context, id uint64, until time.Time) error {
	u := f.byID[id]
	u.EmailCodeLockedUntil = nullTime(until)
	u.EmailCodeRequests = 0
	return nil
}

func (f *fakeUsers) SetResetCode(_ context.Context, id uint64, code string, expires time.Time) error {
	u := f.byID[id]
	u.ResetPasswordCode = nullString(code)
	u.ResetCodeExpiresAt = nullTime(expires)
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	u := f.byID[id]
	u.PasswordHash = nullString(hash)
	u.ResetPasswordCode = nullString("")
	return nil
}

func (f *fakeUsers) SetPhoneCode(_ context.Context, id uint64, code string, expires time.Time, requests int) error {
	u := f.byID[id]
	u.PhoneVerificationCode = nullString(code)
	u.PhoneCodeExpiresAt = nullTime(expires)
	u.PhoneCodeRequests = requests
	return nil
}

func (f *fakeUsers) LockPhoneCodeRequests(_ context.Context, id uint64, until time.Time) error {
	u := f.byID[id]
	u.PhoneCodeLockedUntil = nullTime(until)
	u.PhoneCodeRequests = 0
	return nil
}

func (f *fakeUsers) MarkPhoneVerified(_ context.Context, id uint64) error {
	u := f.byID[id]
	u.PhoneVerified = true
	u.PhoneVerificationCode = nullString("")
	return nil
}

type fakeSessionStore struct {
	byID map[string]*model.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byID: map[string]*model.Session{}}
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.Session) error {
	cp := *s
	cp.Version = 1
	cp.CreatedAt = time.Now().UTC()
	cp.LastUsedAt = cp.CreatedAt
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) Find(_ context.Context, id string) (*model.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// RotateJTI mirrors the single-use compare-and-swap of the SQL store.
func (f *fakeSessionStore) RotateJTI(_ context.Context, id, oldJTI, newJTI string) error {
	s, ok := f.byID[id]
	if !ok || s.Revoked || s.RefreshTokenJTI != oldJTI {
		return repository.ErrStaleRotation
	}
	s.RefreshTokenJTI = newJTI
	return nil
}

func (f *fakeSessionStore) Revoke(_ context.Context, id string) error {
	if s, ok := f.byID[id]; ok {
		s.Revoked = true
	}
	return nil
}

func (f *fakeSessionStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	for _, s := range f.byID {
		if s.UserID == userID {
			s.Revoked = true
		}
	}
	return nil
}

func (f *fakeSessionStore) ListByUser(_ context.Context, userID uint64) ([]model.Session, error) {
	var out []model.Session
	for _, s := range f.byID {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	events []queue.NotificationEvent
}

func (f *fakeNotifier) Send(_ context.Context, ev queue.NotificationEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// ----- harness -----

type authFixture struct {
	h        *AuthHandler
	users    *fakeUsers
	sessions *fakeSessionStore
	notify   *fakeNotifier
	tokens   *auth.TokenManager
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	users := newFakeUsers()
	sessions := newFakeSessionStore()
	notify := &fakeNotifier{}
	tokens := auth.NewTokenManager("handler-test-secret", 15, 30)
	cfg := config.Config{BcryptCost: bcrypt.MinCost}
	return &authFixture{
		h:        NewAuthHandler(cfg, users, sessions, tokens, notify),
		users:    users,
		sessions: sessions,
		notify:   notify,
		tokens:   tokens,
	}
}

// addActiveUser seeds an active, verified password account.
func (f *authFixture) addActiveUser(t *testing.T, email, phone, password string) *model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	return f.users.add(&model.User{
		PhoneNumber:  phone,
		Email:        email,
		Name:         "Test User",
		PasswordHash: nullString(hash),
		Role:         model.RoleCustomer,
		IsActive:     true,
	})
}

func doJSON(t *testing.T, handler echo.HandlerFunc, method, path, body string, setup ...func(echo.Context)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for _, fn := range setup {
		fn(c)
	}
	require.NoError(t, handler(c))
	return rec
}

func withIdentity(id auth.Identity) func(echo.Context) {
	return func(c echo.Context) { c.Set("identity", id) }
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ----- registration & verification -----

func TestRegister_CreatesInactiveCustomerAndQueuesCode(t *testing.T) {
	f := newAuthFixture(t)
	rec := doJSON(t, f.h.Register, http.MethodPost, "/v1/auth/register",
		`{"phone_number":"+491701234567","email":"Anna@Example.com","name":"Anna","password":"secret123"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	u, err := f.users.FindByEmail(context.Background(), "anna@example.com")
	require.NoError(t, err)
	assert.False(t, u.IsActive)
	assert.Equal(t, model.RoleCustomer, u.Role)
	assert.True(t, u.EmailVerificationCode.Valid)
	assert.Equal(t, 1, u.EmailCodeRequests)

	require.Len(t, f.notify.events, 1)
	ev := f.notify.events[0]
	assert.Equal(t, queue.ChannelEmail, ev.Channel)
	assert.Equal(t, "anna@example.com", ev.Destination)
	assert.Equal(t, queue.TemplateVerifyEmail, ev.Template)
	assert.Equal(t, u.EmailVerificationCode.String, ev.Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")

	rec := doJSON(t, f.h.Register, http.MethodPost, "/v1/auth/register",
		`{"phone_number":"+491709999999","email":"anna@example.com","name":"Anna","password":"secret123"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestRegister_MissingFields(t *testing.T) {
	f := newAuthFixture(t)
	rec := doJSON(t, f.h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"anna@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEmail_ActivatesAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.users.add(&model.User{
		Email:                 "anna@example.com",
		PhoneNumber:           "+491701234567",
		Role:                  model.RoleCustomer,
		EmailVerificationCode: nullString("ABC123"),
		EmailCodeExpiresAt:    nullTime(time.Now().UTC().Add(5 * time.Minute)),
	})

	rec := doJSON(t, f.h.VerifyEmail, http.MethodPost, "/v1/auth/verify-email",
		`{"email":"anna@example.com","code":"ABC123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := f.users.FindByEmail(context.Background(), "anna@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsActive)
}

func TestVerifyEmail_ExpiredCode(t *testing.T) {
	f := newAuthFixture(t)
	f.users.add(&model.User{
		Email:                 "anna@example.com",
		EmailVerificationCode: nullString("ABC123"),
		EmailCodeExpiresAt:    nullTime(time.Now().UTC().Add(-time.Minute)),
	})

	rec := doJSON(t, f.h.VerifyEmail, http.MethodPost, "/v1/auth/verify-email",
		`{"email":"anna@example.com","code":"ABC123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "expired")
}

func TestResendVerification_LocksAfterLimit(t *testing.T) {
	f := newAuthFixture(t)
	u := f.users.add(&model.User{
		Email:             "anna@example.com",
		EmailCodeRequests: 5,
	})

	rec := doJSON(t, f.h.ResendVerification, http.MethodPost, "/v1/auth/resend-verification",
		`{"email":"anna@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, f.users.byID[u.ID].EmailCodeLockedUntil.Valid)

	// Subsequent requests inside the lock window stay rejected.
	rec = doJSON(t, f.h.ResendVerification, http.MethodPost, "/v1/auth/resend-verification",
		`{"email":"anna@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestResendVerification_UnknownEmailIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.users.add(&model.User{Email: "known@example.com", EmailCodeRequests: 1})

	known := doJSON(t, f.h.ResendVerification, http.MethodPost, "/v1/auth/resend-verification",
		`{"email":"known@example.com"}`)
	unknown := doJSON(t, f.h.ResendVerification, http.MethodPost, "/v1/auth/resend-verification",
		`{"email":"nobody@example.com"}`)

	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, decode(t, known)["message"], decode(t, unknown)["message"])
}

// ----- password reset -----

func TestRequestPasswordReset_UnknownEmailIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")

	known := doJSON(t, f.h.RequestPasswordReset, http.MethodPost, "/v1/auth/request-password-reset",
		`{"email":"anna@example.com"}`)
	unknown := doJSON(t, f.h.RequestPasswordReset, http.MethodPost, "/v1/auth/request-password-reset",
		`{"email":"nobody@example.com"}`)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, decode(t, known)["message"], decode(t, unknown)["message"])

	// Only the real account got a code queued.
	require.Len(t, f.notify.events, 1)
	assert.Equal(t, queue.TemplateResetPassword, f.notify.events[0].Template)
}

func TestResetPassword_ReplacesHash(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "oldpassword")
	f.users.byID[u.ID].ResetPasswordCode = nullString("XYZ789")
	f.users.byID[u.ID].ResetCodeExpiresAt = nullTime(time.Now().UTC().Add(10 * time.Minute))

	rec := doJSON(t, f.h.ResetPassword, http.MethodPost, "/v1/auth/reset-password",
		`{"email":"anna@example.com","code":"XYZ789","new_password":"newpassword"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := f.users.byID[u.ID]
	assert.True(t, utils.VerifyPassword(updated.PasswordHash.String, "newpassword"))
	assert.False(t, utils.VerifyPassword(updated.PasswordHash.String, "oldpassword"))
}

func TestResetPassword_WrongCode(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "oldpassword")
	f.users.byID[u.ID].ResetPasswordCode = nullString("XYZ789")
	f.users.byID[u.ID].ResetCodeExpiresAt = nullTime(time.Now().UTC().Add(10 * time.Minute))

	rec := doJSON(t, f.h.ResetPassword, http.MethodPost, "/v1/auth/reset-password",
		`{"email":"anna@example.com","code":"WRONG1","new_password":"newpassword"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ----- login -----

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")

	rec := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"anna@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	require.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])

	// The access token binds the new session at version 1.
	claims, aerr := f.tokens.ParseAccess(body["access_token"].(string))
	require.Nil(t, aerr)
	assert.Equal(t, 1, claims.SessionVersion)

	sess, err := f.sessions.Find(context.Background(), claims.SessionID)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, sess.UserID)

	// The stored JTI matches the refresh token that was handed out.
	rc, aerr := f.tokens.ParseRefresh(body["refresh_token"].(string))
	require.Nil(t, aerr)
	assert.Equal(t, rc.JTI(), sess.RefreshTokenJTI)

	// No password material in the response.
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "anna@example.com", user["email"])
	_, leaked := user["password_hash"]
	assert.False(t, leaked)
}

func TestLogin_ByPhoneNumber(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")

	rec := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"+491701234567","password":"secret123"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_UnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")

	unknown := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"nobody@example.com","password":"secret123"}`)
	wrongPass := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"anna@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, unknown.Code, wrongPass.Code)
	assert.Equal(t, decode(t, unknown)["message"], decode(t, wrongPass)["message"])
}

func TestLogin_OAuthAccountRejectsPassword(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	f.users.byID[u.ID].OAuthProvider = nullString("google")

	rec := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"anna@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "google")
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	f.users.byID[u.ID].IsActive = false

	rec := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"anna@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, auth.ErrAccountInactive.Message, decode(t, rec)["message"])
}

func TestLogin_BannedAccount(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	f.users.byID[u.ID].IsBanned = true

	rec := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"anna@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, auth.ErrAccountBanned.Message, decode(t, rec)["message"])
}

// ----- refresh -----

// login is a helper that runs a full login and returns the token pair.
func loginTokens(t *testing.T, f *authFixture) (access, refresh string) {
	t.Helper()
	rec := doJSON(t, f.h.Login, http.MethodPost, "/v1/auth/login",
		`{"identifier":"anna@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestRefresh_RotatesTokenPair(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	_, refresh := loginTokens(t, f)

	rec := doJSON(t, f.h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	newRefresh := body["refresh_token"].(string)
	assert.NotEqual(t, refresh, newRefresh)

	// The session row now holds the new JTI.
	rc, aerr := f.tokens.ParseRefresh(newRefresh)
	require.Nil(t, aerr)
	sess, err := f.sessions.Find(context.Background(), rc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, rc.JTI(), sess.RefreshTokenJTI)
}

func TestRefresh_OldTokenSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	_, refresh := loginTokens(t, f)

	first := doJSON(t, f.h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, first.Code)

	// Replaying the spent token must fail with the uniform session error.
	second := doJSON(t, f.h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, second.Code)
	assert.Equal(t, auth.ErrInvalidSession.Message, decode(t, second)["message"])
}

func TestRefresh_RevokedSession(t *testing.T) {
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	_, refresh := loginTokens(t, f)

	rc, aerr := f.tokens.ParseRefresh(refresh)
	require.Nil(t, aerr)
	require.NoError(t, f.sessions.Revoke(context.Background(), rc.SessionID))

	rec := doJSON(t, f.h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.ErrInvalidSession.Message, decode(t, rec)["message"])
}

func TestRefresh_GarbageToken(t *testing.T) {
	f := newAuthFixture(t)
	rec := doJSON(t, f.h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_CarriesBumpedSessionVersion(t *testing.T) {
	// After an admin bumps the session version, a refreshed access token must
	// carry the new version so it passes the gate.
	f := newAuthFixture(t)
	f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	_, refresh := loginTokens(t, f)

	rc, aerr := f.tokens.ParseRefresh(refresh)
	require.Nil(t, aerr)
	f.sessions.byID[rc.SessionID].Version = 2

	rec := doJSON(t, f.h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	claims, aerr := f.tokens.ParseAccess(decode(t, rec)["access_token"].(string))
	require.Nil(t, aerr)
	assert.Equal(t, 2, claims.SessionVersion)
}

// ----- logout & self-service -----

func TestLogout_RevokesOwnSession(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	access, _ := loginTokens(t, f)

	claims, aerr := f.tokens.ParseAccess(access)
	require.Nil(t, aerr)

	rec := doJSON(t, f.h.Logout, http.MethodPost, "/v1/auth/logout", "",
		withIdentity(auth.Identity{UserID: u.ID, Role: u.Role, SessionID: claims.SessionID}))
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := f.sessions.Find(context.Background(), claims.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.Revoked)
}

func TestLogoutAll_RevokesOnlyOwnSessions(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	other := f.addActiveUser(t, "bob@example.com", "+491709999999", "secret123")

	loginTokens(t, f)
	loginTokens(t, f)
	f.sessions.byID["other-sess"] = &model.Session{
		ID: "other-sess", UserID: other.ID, ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	rec := doJSON(t, f.h.LogoutAll, http.MethodPost, "/v1/auth/logout_all_sessions", "",
		withIdentity(auth.Identity{UserID: u.ID, Role: u.Role, SessionID: "whatever"}))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, s := range f.sessions.byID {
		if s.UserID == u.ID {
			assert.True(t, s.Revoked)
		} else {
			assert.False(t, s.Revoked)
		}
	}
}

func TestMe_ReturnsProfile(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")

	rec := doJSON(t, f.h.Me, http.MethodGet, "/v1/me", "",
		withIdentity(auth.Identity{UserID: u.ID, Role: u.Role, SessionID: "s"}))
	require.Equal(t, http.StatusOK, rec.Code)

	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "anna@example.com", user["email"])
}

func TestListSessions_ReturnsOwnSessions(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	loginTokens(t, f)
	loginTokens(t, f)

	rec := doJSON(t, f.h.ListSessions, http.MethodGet, "/v1/sessions", "",
		withIdentity(auth.Identity{UserID: u.ID, Role: u.Role, SessionID: "s"}))
	require.Equal(t, http.StatusOK, rec.Code)

	sessions := decode(t, rec)["sessions"].([]interface{})
	assert.Len(t, sessions, 2)
}

// ----- phone verification -----

func TestRequestPhoneCode_QueuesSMS(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")

	rec := doJSON(t, f.h.RequestPhoneCode, http.MethodPost, "/v1/auth/request-phone-verification-code", "",
		withIdentity(auth.Identity{UserID: u.ID, Role: u.Role, SessionID: "s"}))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.notify.events, 1)
	ev := f.notify.events[0]
	assert.Equal(t, queue.ChannelSMS, ev.Channel)
	assert.Equal(t, "+491701234567", ev.Destination)
	assert.Equal(t, queue.TemplateVerifyPhone, ev.Template)
	assert.Len(t, ev.Code, 6)
}

func TestVerifyPhone_MarksVerified(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	f.users.byID[u.ID].PhoneVerificationCode = nullString("123456")
	f.users.byID[u.ID].PhoneCodeExpiresAt = nullTime(time.Now().UTC().Add(5 * time.Minute))

	rec := doJSON(t, f.h.VerifyPhone, http.MethodPost, "/v1/auth/verify-phone",
		`{"code":"123456"}`,
		withIdentity(auth.Identity{UserID: u.ID, Role: u.Role, SessionID: "s"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.users.byID[u.ID].PhoneVerified)
}

func TestVerifyPhone_ExpiredCode(t *testing.T) {
	f := newAuthFixture(t)
	u := f.addActiveUser(t, "anna@example.com", "+491701234567", "secret123")
	f.users.byID[u.ID].PhoneVerificationCode = nullString("123456")
	f.users.byID[u.ID].PhoneCodeExpiresAt = nullTime(time.Now().UTC().Add(-time.Minute))

	rec := doJSON(t, f.h.VerifyPhone, http.MethodPost, "/v1/auth/verify-phone",
		`{"code":"123456"}`,
		withIdentity(auth.Identity{UserID: u.ID, Role: u.Role, SessionID: "s"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
