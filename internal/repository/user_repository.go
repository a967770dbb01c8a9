package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/food-delivery-api/internal/model"
)

// userColumns is the select list shared by every user lookup.  Keep in sync
// with scanUser.
const userColumns = `id, phone_number, email, name, profile_image_url, password_hash, role,
	is_active, is_banned, oauth_provider, phone_number_verified,
	email_verification_code, email_code_expires_at,
	reset_password_code, reset_code_expires_at,
	phone_verification_code, phone_code_expires_at,
	email_code_requests, email_code_locked_until,
	phone_code_requests, phone_code_locked_until,
	created_at, updated_at`

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.PhoneNumber, &u.Email, &u.Name, &u.ProfileImageURL, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.IsBanned, &u.OAuthProvider, &u.PhoneVerified,
		&u.EmailVerificationCode, &u.EmailCodeExpiresAt,
		&u.ResetPasswordCode, &u.ResetCodeExpiresAt,
		&u.PhoneVerificationCode, &u.PhoneCodeExpiresAt,
		&u.EmailCodeRequests, &u.EmailCodeLockedUntil,
		&u.PhoneCodeRequests, &u.PhoneCodeLockedUntil,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user and returns its ID.  Unique-key collisions on phone
// or email map to the matching sentinel error.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users
			(phone_number, email, name, profile_image_url, password_hash, role,
			 is_active, is_banned, oauth_provider, phone_number_verified,
			 email_verification_code, email_code_expires_at, email_code_requests)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.PhoneNumber, strings.ToLower(strings.TrimSpace(u.Email)), u.Name, u.ProfileImageURL,
		u.PasswordHash, u.Role, u.IsActive, u.IsBanned, u.OAuthProvider, u.PhoneVerified,
		u.EmailVerificationCode, u.EmailCodeExpiresAt, u.EmailCodeRequests)
	if err != nil {
		if dup := duplicateKeyError(err); dup != nil {
			return 0, dup
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// duplicateKeyError translates MySQL error 1062 into a sentinel, picking the
// colliding column from the key name in the message.
func duplicateKeyError(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "1062") {
		return nil
	}
	if strings.Contains(msg, "phone") {
		return ErrPhoneExists
	}
	return ErrEmailExists
}

// FindByIdentifier fetches a user whose phone number or email matches the
// given identifier.  Login accepts either form.
func (r *UserRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE phone_number=? OR email=? LIMIT 1",
		identifier, strings.ToLower(identifier)))
}

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email))))
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// Activate flips the account active and clears the email verification state,
// including the request counter and lock.
func (r *UserRepo) Activate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET is_active=1, email_verification_code=NULL, email_code_expires_at=NULL,
			email_code_requests=0, email_code_locked_until=NULL WHERE id=?`, id)
	return err
}

// SetEmailCode stores a new email verification code with its expiry and the
// updated request count.
func (r *UserRepo) SetEmailCode(ctx context.Context, id uint64, code string, expires time.Time, requests int) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email_verification_code=?, email_code_expires_at=?, email_code_requests=? WHERE id=?",
		code, expires, requests, id)
	return err
}

// LockEmailCodeRequests locks further email-code requests until the given
// time and resets the counter for the next cycle.
func (r *UserRepo) LockEmailCodeRequests(ctx context.Context, id uint64, until time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email_code_locked_until=?, email_code_requests=0 WHERE id=?", until, id)
	return err
}

// SetResetCode stores a password-reset code with its expiry.
func (r *UserRepo) SetResetCode(ctx context.Context, id uint64, code string, expires time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_password_code=?, reset_code_expires_at=? WHERE id=?",
		code, expires, id)
	return err
}

// UpdatePassword replaces the password hash and clears any pending reset code.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, reset_password_code=NULL, reset_code_expires_at=NULL WHERE id=?",
		hash, id)
	return err
}

// SetPhoneCode stores a new phone verification OTP with its expiry and the
// updated request count.
func (r *UserRepo) SetPhoneCode(ctx context.Context, id uint64, code string, expires time.Time, requests int) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET phone_verification_code=?, phone_code_expires_at=?, phone_code_requests=? WHERE id=?",
		code, expires, requests, id)
	return err
}

// LockPhoneCodeRequests locks further phone-code requests until the given
// time and resets the counter.
func (r *UserRepo) LockPhoneCodeRequests(ctx context.Context, id uint64, until time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET phone_code_locked_until=?, phone_code_requests=0 WHERE id=?", until, id)
	return err
}

// MarkPhoneVerified confirms the phone number and clears the OTP state.
func (r *UserRepo) MarkPhoneVerified(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET phone_number_verified=1, phone_verification_code=NULL, phone_code_expires_at=NULL,
			phone_code_requests=0, phone_code_locked_until=NULL WHERE id=?`, id)
	return err
}

// ChangeRole updates a user's role and bumps the session version on every
// live session of that user in the same transaction.  The bump is what makes
// already-issued access tokens carrying the old role fail verification, so
// the two writes must commit or roll back together.
func (r *UserRepo) ChangeRole(ctx context.Context, id uint64, role model.Role) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE users SET role=? WHERE id=?", role, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET session_version=session_version+1 WHERE user_id=? AND revoked=0", id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetBanned flips the ban flag.  Banning also revokes every live session in
// the same transaction, so a half-applied ban can never leave the user with
// working credentials.
func (r *UserRepo) SetBanned(ctx context.Context, id uint64, banned bool) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE users SET is_banned=? WHERE id=?", banned, id); err != nil {
		return err
	}
	if banned {
		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET revoked=1 WHERE user_id=? AND revoked=0", id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
