// Package auth implements the session-versioned token protocol: access/refresh
// token issuance, request-time verification and the per-operation permission
// table.  Every failure surfaces as an *Error carrying a machine-readable kind
// and the HTTP status it maps to; no jwt library error ever crosses this
// package's boundary untranslated.
package auth

import "net/http"

// Kind identifies one branch of the authentication failure taxonomy.
type Kind string

const (
	KindMissingHeader      Kind = "authorization_header_missing"
	KindMalformedHeader    Kind = "invalid_header"
	KindTokenExpired       Kind = "token_expired"
	KindTokenInvalid       Kind = "token_invalid"
	KindIncompletePayload  Kind = "invalid_payload"
	KindForbidden          Kind = "forbidden"
	KindInvalidSession     Kind = "invalid_session"
	KindPermissionsChanged Kind = "permissions_changed"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountInactive    Kind = "account_inactive"
	KindAccountBanned      Kind = "account_banned"
	KindWrongAuthMethod    Kind = "wrong_auth_method"
	KindProviderMismatch   Kind = "provider_mismatch"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Error is a structured authentication failure.  Status is the HTTP status
// code the failure translates to at the boundary.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

var (
	ErrMissingHeader      = &Error{KindMissingHeader, http.StatusUnauthorized, "Authorization header is expected."}
	ErrMalformedHeader    = &Error{KindMalformedHeader, http.StatusUnauthorized, "Authorization header must be a bearer token."}
	ErrTokenExpired       = &Error{KindTokenExpired, http.StatusUnauthorized, "Token has expired."}
	ErrTokenInvalid       = &Error{KindTokenInvalid, http.StatusUnauthorized, "Invalid token."}
	ErrIncompletePayload  = &Error{KindIncompletePayload, http.StatusUnauthorized, "Token payload is incomplete."}
	ErrForbidden          = &Error{KindForbidden, http.StatusForbidden, "Permission not found."}
	ErrInvalidSession     = &Error{KindInvalidSession, http.StatusUnauthorized, "Session is invalid or has been revoked."}
	ErrPermissionsChanged = &Error{KindPermissionsChanged, http.StatusUnauthorized, "User permissions have changed. Please log in again."}
	ErrInvalidCredentials = &Error{KindInvalidCredentials, http.StatusUnauthorized, "Invalid credentials."}
	ErrAccountInactive    = &Error{KindAccountInactive, http.StatusForbidden, "Account is not active. Please verify your account."}
	ErrAccountBanned      = &Error{KindAccountBanned, http.StatusForbidden, "This account has been banned."}
	ErrWrongAuthMethod    = &Error{KindWrongAuthMethod, http.StatusForbidden, "This account uses social login."}
	ErrProviderMismatch   = &Error{KindProviderMismatch, http.StatusConflict, "This email is registered with a different login method."}
	ErrNotFound           = &Error{KindNotFound, http.StatusNotFound, "Resource not found."}
	ErrInternal           = &Error{KindInternal, http.StatusInternalServerError, "An unexpected error occurred."}
)
