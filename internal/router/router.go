package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/food-delivery-api/internal/auth"       // operation names for the permission table
	"github.com/iliyamo/food-delivery-api/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/food-delivery-api/internal/middleware" // auth gate and rate limiting
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check used by
// load balancers and monitoring systems.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes.  Unauthenticated
// operations live under /v1/auth; protected endpoints are wrapped by the
// gate, each declaring the operation it maps to in the permission table.
// The rate limiter guards the endpoints an attacker would hammer: login,
// refresh and the code-issuing flows.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o *handler.OAuthHandler, gate *middleware.AuthGate, rl echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", rl)

	// Account lifecycle.
	g.POST("/register", a.Register)
	g.POST("/verify-email", a.VerifyEmail)
	g.POST("/resend-verification", a.ResendVerification)
	g.POST("/request-password-reset", a.RequestPasswordReset)
	g.POST("/reset-password", a.ResetPassword)

	// Token issuance and rotation.
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)

	// Social login: consent redirect plus provider callback.
	g.GET("/oauth/login/:provider", o.Login)
	g.GET("/oauth/authorize/:provider", o.Authorize)

	// Session termination requires a valid access token; the session to act
	// on comes from the token payload itself.
	g.POST("/logout", a.Logout, gate.Require(auth.OpLogout))
	g.POST("/logout_all_sessions", a.LogoutAll, gate.Require(auth.OpLogoutAll))

	// Phone verification for the logged-in account.
	g.POST("/request-phone-verification-code", a.RequestPhoneCode, gate.Require(auth.OpRequestPhoneCode))
	g.POST("/verify-phone", a.VerifyPhone, gate.Require(auth.OpVerifyPhone))

	// Authenticated self-service endpoints.
	v1 := e.Group("/v1")
	v1.GET("/me", a.Me, gate.Require(auth.OpMe))
	v1.GET("/sessions", a.ListSessions, gate.Require(auth.OpListSessions))
}

// RegisterAdmin registers the user-management surface.  Role policy lives in
// the permission table; the handlers add the checks that depend on the
// target user.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, gate *middleware.AuthGate) {
	g := e.Group("/v1/admin")
	g.PUT("/users/:id/role", h.ChangeRole, gate.Require(auth.OpChangeUserRole))
	g.POST("/users/:id/ban", h.Ban, gate.Require(auth.OpBanUser))
	g.POST("/users/:id/unban", h.Unban, gate.Require(auth.OpUnbanUser))
}
