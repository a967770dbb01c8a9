package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/food-delivery-api/internal/model"
)

// Leeway tolerated when comparing token expiry against the request clock.
// Without an explicit value, exact-equality edge cases between machines with
// slightly drifting clocks would be undefined.
const clockSkewLeeway = 5 * time.Second

// AccessClaims is the payload of a short-lived access token.  Validity is
// derived at request time by cross-checking SessionID/SessionVersion against
// the live session row, so nothing here is persisted server-side.
type AccessClaims struct {
	UserID         uint64     `json:"id"`
	Role           model.Role `json:"role"`
	SessionID      string     `json:"session_id"`
	SessionVersion int        `json:"session_version"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a long-lived refresh token.  The JTI (the
// registered "jti" claim) is the only part persisted server-side, on the
// owning session row.
type RefreshClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// JTI returns the token's unique identifier.
func (c *RefreshClaims) JTI() string { return c.ID }

// TokenManager mints and verifies the HS256 token pair.  One instance is
// constructed in main with the process-wide secret and injected wherever
// tokens are issued or checked.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager builds a TokenManager.  TTL units follow the configuration
// convention: minutes for access tokens, days for refresh tokens.
func NewTokenManager(secret string, accessTTLMin, refreshTTLDays int) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMin) * time.Minute,
		refreshTTL: time.Duration(refreshTTLDays) * 24 * time.Hour,
	}
}

// RefreshTTL exposes the refresh lifetime so session rows can be created with
// a matching expiry.
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccess signs an access token binding the user to a session at a
// specific session version.  Read-only; no server-side state is touched.
func (m *TokenManager) IssueAccess(u *model.User, sessionID string, sessionVersion int) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.accessTTL)
	claims := &AccessClaims{
		UserID:         u.ID,
		Role:           u.Role,
		SessionID:      sessionID,
		SessionVersion: sessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh signs a refresh token for a session and returns the token,
// its freshly generated JTI and the expiry.  The caller must persist the JTI
// on the session row; until that happens the token cannot be redeemed.
func (m *TokenManager) IssueRefresh(sessionID string) (string, string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.refreshTTL)
	jti := uuid.NewString()
	claims := &RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

// ParseAccess verifies an access token's signature and expiry and checks that
// the payload carries every field the gate needs.  Failures map onto the
// taxonomy: ErrTokenExpired, ErrTokenInvalid or ErrIncompletePayload.
func (m *TokenManager) ParseAccess(raw string) (*AccessClaims, *Error) {
	claims := &AccessClaims{}
	if err := m.parse(raw, claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 || claims.Role == "" || claims.SessionID == "" || claims.SessionVersion == 0 {
		return nil, ErrIncompletePayload
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token.  Per the anti-enumeration policy the
// refresh endpoint collapses every failure into one answer, so this returns
// ErrTokenInvalid for anything but a clean expiry.
func (m *TokenManager) ParseRefresh(raw string) (*RefreshClaims, *Error) {
	claims := &RefreshClaims{}
	if err := m.parse(raw, claims); err != nil {
		return nil, err
	}
	if claims.SessionID == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *TokenManager) parse(raw string, claims jwt.Claims) *Error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(clockSkewLeeway))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return nil
}
