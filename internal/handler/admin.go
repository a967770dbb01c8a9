package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/food-delivery-api/internal/auth"
	"github.com/iliyamo/food-delivery-api/internal/middleware"
	"github.com/iliyamo/food-delivery-api/internal/model"
	"github.com/iliyamo/food-delivery-api/internal/repository"
)

// AdminUserStore is the slice of the user repository the admin endpoints
// need.  ChangeRole and SetBanned are transactional: the role/ban write and
// the matching session-version bump or revocation commit together.
type AdminUserStore interface {
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	ChangeRole(ctx context.Context, id uint64, role model.Role) error
	SetBanned(ctx context.Context, id uint64, banned bool) error
}

// AdminHandler implements the user-management surface.  Routes are guarded by
// the gate with manager/admin operations, so handlers only add the
// finer-grained policy that depends on the target user.
type AdminHandler struct {
	Users AdminUserStore
}

func NewAdminHandler(u AdminUserStore) *AdminHandler {
	return &AdminHandler{Users: u}
}

type changeRoleReq struct {
	NewRole string `json:"new_role"`
}

// ChangeRole updates a user's role.  The underlying store bumps the session
// version on every live session of the target in the same transaction, so
// access tokens carrying the old role die immediately even though their
// signatures remain valid.
func (h *AdminHandler) ChangeRole(c echo.Context) error {
	actor, ok := middleware.CurrentIdentity(c)
	if !ok {
		return respond(c, auth.ErrInvalidSession)
	}
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	var req changeRoleReq
	if err := c.Bind(&req); err != nil || req.NewRole == "" {
		return fail(c, http.StatusBadRequest, "new role is required")
	}
	if !model.ValidRole(req.NewRole) {
		return fail(c, http.StatusBadRequest, "unknown role")
	}
	newRole := model.Role(req.NewRole)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	target, err := h.Users.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respond(c, auth.ErrNotFound)
		}
		return respond(c, auth.ErrInternal)
	}

	// Managers may not grant or touch manager/admin privileges.
	if actor.Role == model.RoleManager {
		if newRole == model.RoleAdmin || newRole == model.RoleManager ||
			target.Role == model.RoleAdmin || target.Role == model.RoleManager {
			return fail(c, http.StatusForbidden, "managers cannot assign or modify admin/manager roles")
		}
	}

	if err := h.Users.ChangeRole(ctx, targetID, newRole); err != nil {
		return respond(c, auth.ErrInternal)
	}
	return okMsg(c, http.StatusOK, "role changed to "+req.NewRole)
}

// Ban flags the user banned and revokes every live session in one
// transaction, so a banned user cannot keep working on existing tokens.
func (h *AdminHandler) Ban(c echo.Context) error {
	return h.setBanned(c, true, "user banned")
}

// Unban clears the ban flag.  Revoked sessions stay revoked; the user must
// log in again.
func (h *AdminHandler) Unban(c echo.Context) error {
	return h.setBanned(c, false, "user unbanned")
}

func (h *AdminHandler) setBanned(c echo.Context, banned bool, msg string) error {
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Users.FindByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respond(c, auth.ErrNotFound)
		}
		return respond(c, auth.ErrInternal)
	}
	if err := h.Users.SetBanned(ctx, targetID, banned); err != nil {
		return respond(c, auth.ErrInternal)
	}
	return okMsg(c, http.StatusOK, msg)
}
