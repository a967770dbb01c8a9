package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/food-delivery-api/internal/auth"
	"github.com/iliyamo/food-delivery-api/internal/model"
)

// identityKey is the context key under which the gate stores the resolved
// caller identity.
const identityKey = "identity"

// SessionReader is the slice of the session store the gate needs: a lookup
// and a best-effort last-used update.
type SessionReader interface {
	Find(ctx context.Context, id string) (*model.Session, error)
	Touch(ctx context.Context, id string) error
}

// AuthGate verifies bearer access tokens against the live session record and
// enforces the per-operation permission table.  One instance wraps every
// protected route.
type AuthGate struct {
	Tokens   *auth.TokenManager
	Sessions SessionReader
}

func NewAuthGate(tm *auth.TokenManager, sessions SessionReader) *AuthGate {
	return &AuthGate{Tokens: tm, Sessions: sessions}
}

// Require returns an Echo middleware enforcing authentication and the role
// policy for the named operation.  On success the resolved auth.Identity is
// stored in the context for the handler; every failure is translated to the
// structured JSON envelope before it reaches the client.
func (g *AuthGate) Require(op auth.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, aerr := g.evaluate(c, op)
			if aerr != nil {
				return RespondAuthError(c, aerr)
			}
			c.Set(identityKey, *id)
			return next(c)
		}
	}
}

// evaluate runs the verification ladder in order: header shape, signature and
// expiry, payload completeness, role policy, live-session cross-check,
// session-version check.  The order matters: cheap stateless checks come
// before the store lookup.
func (g *AuthGate) evaluate(c echo.Context, op auth.Operation) (*auth.Identity, *auth.Error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return nil, auth.ErrMissingHeader
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, auth.ErrMalformedHeader
	}

	claims, aerr := g.Tokens.ParseAccess(parts[1])
	if aerr != nil {
		return nil, aerr
	}

	if !auth.Allowed(op, claims.Role) {
		return nil, auth.ErrForbidden
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := g.Sessions.Find(ctx, claims.SessionID)
	if err != nil {
		// Missing row and store failure are both unusable sessions from the
		// caller's point of view; the distinction stays in the server log.
		return nil, auth.ErrInvalidSession
	}
	if !sess.Live(time.Now().UTC()) {
		return nil, auth.ErrInvalidSession
	}
	if sess.Version != claims.SessionVersion {
		return nil, auth.ErrPermissionsChanged
	}

	// Best effort: a failed touch must not fail an otherwise valid request.
	if err := g.Sessions.Touch(ctx, sess.ID); err != nil {
		log.Printf("auth: touch session %s failed: %v", sess.ID, err)
	}

	return &auth.Identity{UserID: claims.UserID, Role: claims.Role, SessionID: claims.SessionID}, nil
}

// CurrentIdentity returns the identity stored by the gate.  The boolean is
// false on routes that were not wrapped by Require.
func CurrentIdentity(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}

// RespondAuthError writes an auth failure as the standard JSON envelope.
func RespondAuthError(c echo.Context, e *auth.Error) error {
	return c.JSON(e.Status, echo.Map{
		"success": false,
		"error":   e.Status,
		"message": e.Message,
	})
}
