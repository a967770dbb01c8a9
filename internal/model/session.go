package model

import (
	"database/sql"
	"time"
)

// Session mirrors the 'sessions' table.  One row represents one logged-in
// client instance.  Rows are never deleted by the auth flow: logout flips the
// revoked flag so the record survives for auditing.
//
// Two invariants matter here:
//   - RefreshTokenJTI holds the identifier of the single live refresh token
//     for this session.  Rotation overwrites it, which retires the previous
//     token even though its signature would still verify.
//   - Version starts at 1 and is bumped whenever the user's permissions
//     change, which instantly invalidates every access token minted against
//     the old version.
type Session struct {
	ID              string
	UserID          uint64
	RefreshTokenJTI string
	Version         int
	Revoked         bool
	CreatedAt       time.Time
	LastUsedAt      time.Time
	ExpiresAt       time.Time
	UserAgent       sql.NullString
	IPAddress       sql.NullString
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Live reports whether the session can still authenticate requests.
func (s *Session) Live(now time.Time) bool {
	return !s.Revoked && !s.Expired(now)
}

// PublicSession is the JSON shape used by the session-listing endpoint so a
// user can audit which devices hold credentials for their account.
type PublicSession struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Revoked    bool      `json:"revoked"`
}

// Public strips a Session down to its client-visible fields.
func (s *Session) Public() PublicSession {
	return PublicSession{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
		ExpiresAt:  s.ExpiresAt,
		UserAgent:  s.UserAgent.String,
		IPAddress:  s.IPAddress.String,
		Revoked:    s.Revoked,
	}
}
