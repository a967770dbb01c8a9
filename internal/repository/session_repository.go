package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/food-delivery-api/internal/model"
)

const sessionColumns = `id, user_id, refresh_token_jti, session_version, revoked,
	created_at, last_used_at, expires_at, user_agent, ip_address`

// SessionRepo persists login sessions.  Sessions are soft-revoked only; rows
// stay around as an audit trail of which clients held credentials.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a new session row.  Version always starts at 1.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO sessions
			(id, user_id, refresh_token_jti, session_version, revoked, expires_at, user_agent, ip_address)
		 VALUES (?,?,?,1,0,?,?,?)`,
		s.ID, s.UserID, s.RefreshTokenJTI, s.ExpiresAt, s.UserAgent, s.IPAddress)
	return err
}

// Find fetches a session by id.
func (r *SessionRepo) Find(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id=? LIMIT 1", id).
		Scan(&s.ID, &s.UserID, &s.RefreshTokenJTI, &s.Version, &s.Revoked,
			&s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt, &s.UserAgent, &s.IPAddress)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Touch updates last_used_at.  Callers on the hot path treat failures as
// best-effort and do not fail the request over them.
func (r *SessionRepo) Touch(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_used_at=UTC_TIMESTAMP() WHERE id=?", id)
	return err
}

// RotateJTI swaps the stored refresh-token JTI from oldJTI to newJTI as a
// single compare-and-swap.  The WHERE clause guarantees single-use rotation:
// if the stored JTI no longer equals oldJTI (a replay, or a concurrent
// refresh that won the race) or the session was revoked meanwhile, zero rows
// match and ErrStaleRotation is returned.
func (r *SessionRepo) RotateJTI(ctx context.Context, id, oldJTI, newJTI string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET refresh_token_jti=?, last_used_at=UTC_TIMESTAMP()
		 WHERE id=? AND refresh_token_jti=? AND revoked=0`,
		newJTI, id, oldJTI)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleRotation
	}
	return nil
}

// Revoke marks a single session revoked.
func (r *SessionRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked=1 WHERE id=? AND revoked=0", id)
	return err
}

// RevokeAllForUser marks every live session of a user revoked.  Sessions of
// other users are untouched.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked=1 WHERE user_id=? AND revoked=0", userID)
	return err
}

// BumpVersionForUser increments the session version on every live session of
// a user, invalidating all access tokens minted against the old version.
func (r *SessionRepo) BumpVersionForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET session_version=session_version+1 WHERE user_id=? AND revoked=0", userID)
	return err
}

// ListByUser returns a user's sessions, newest first.
func (r *SessionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id=? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenJTI, &s.Version, &s.Revoked,
			&s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt, &s.UserAgent, &s.IPAddress); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
