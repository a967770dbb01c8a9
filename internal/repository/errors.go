// Package repository persists users and sessions over database/sql.  The
// sentinel errors below let handlers distinguish failure scenarios without
// inspecting driver-specific error strings themselves.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert collides on the unique email key.
var ErrEmailExists = errors.New("email already exists")

// ErrPhoneExists is returned when an insert collides on the unique phone key.
var ErrPhoneExists = errors.New("phone number already exists")

// ErrStaleRotation is returned when a refresh rotation's compare-and-swap
// finds the stored JTI already changed (or the session revoked).  It means
// the presented refresh token has been used before, or a concurrent refresh
// won the race; either way the caller must treat the session as invalid.
var ErrStaleRotation = errors.New("stale refresh rotation")
