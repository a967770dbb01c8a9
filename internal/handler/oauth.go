package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/food-delivery-api/internal/auth"
	"github.com/iliyamo/food-delivery-api/internal/config"
	"github.com/iliyamo/food-delivery-api/internal/model"
	"github.com/iliyamo/food-delivery-api/internal/oauth"
	"github.com/iliyamo/food-delivery-api/internal/repository"
	"github.com/iliyamo/food-delivery-api/internal/utils"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// OAuthHandler implements the social-login flow.  After the provider round
// trip it funnels into the same session-creation path as password login, so
// there is exactly one session model regardless of how the user signed in.
type OAuthHandler struct {
	Cfg       config.Config
	Providers oauth.Registry
	Users     UserStore
	Sessions  SessionStore
	Tokens    *auth.TokenManager
}

func NewOAuthHandler(cfg config.Config, reg oauth.Registry, u UserStore, s SessionStore, tm *auth.TokenManager) *OAuthHandler {
	return &OAuthHandler{Cfg: cfg, Providers: reg, Users: u, Sessions: s, Tokens: tm}
}

// Login redirects the browser to the provider's consent screen.  A random
// state value is pinned in a short-lived cookie and checked on the callback.
func (h *OAuthHandler) Login(c echo.Context) error {
	p, ok := h.Providers.Get(c.Param("provider"))
	if !ok {
		return fail(c, http.StatusNotFound, "unknown oauth provider")
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fail(c, http.StatusInternalServerError, "oauth login failed")
	}
	state := hex.EncodeToString(buf)

	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, p.AuthURL(state))
}

// Authorize is the provider callback.  Errors redirect back to the frontend
// with a message rather than rendering JSON, because the browser is mid-flow.
func (h *OAuthHandler) Authorize(c echo.Context) error {
	p, ok := h.Providers.Get(c.Param("provider"))
	if !ok {
		return h.redirectError(c, "unknown oauth provider")
	}
	if msg := c.QueryParam("error"); msg != "" {
		return h.redirectError(c, msg)
	}

	cookie, err := c.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != c.QueryParam("state") {
		return h.redirectError(c, "invalid oauth state")
	}
	code := c.QueryParam("code")
	if code == "" {
		return h.redirectError(c, "missing authorization code")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	tok, err := p.Exchange(ctx, code)
	if err != nil {
		log.Printf("oauth: %s code exchange failed: %v", p.Name, err)
		return h.redirectError(c, "social login failed")
	}
	profile, err := p.FetchProfile(ctx, tok)
	if err != nil {
		log.Printf("oauth: %s userinfo failed: %v", p.Name, err)
		return h.redirectError(c, "social login failed")
	}
	if profile.Email == "" {
		return h.redirectError(c, "email address not provided by "+p.Name)
	}

	u, aerr := h.resolveUser(ctx, p.Name, profile)
	if aerr != nil {
		return h.redirectError(c, aerr.Message)
	}

	access, refresh, err := issueSession(ctx, c, h.Sessions, h.Tokens, u)
	if err != nil {
		return h.redirectError(c, "social login failed")
	}

	q := url.Values{}
	q.Set("token", access)
	q.Set("refresh_token", refresh)
	return c.Redirect(http.StatusFound, h.Cfg.FrontendURL+"/auth/callback?"+q.Encode())
}

// resolveUser maps a provider identity onto a local account:
// reuse when the email belongs to this provider, reject when the email is
// owned by another auth method, create otherwise.
func (h *OAuthHandler) resolveUser(ctx context.Context, provider string, profile oauth.Profile) (*model.User, *auth.Error) {
	u, err := h.Users.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		if !u.OAuthProvider.Valid || u.OAuthProvider.String != provider {
			return nil, auth.ErrProviderMismatch
		}
		if u.IsBanned {
			return nil, auth.ErrAccountBanned
		}
		return u, nil
	case errors.Is(err, repository.ErrNotFound):
		// First login with this email: provision an account.  The phone
		// placeholder keeps the unique phone column satisfied until the user
		// verifies a real number.
		picture := profile.Picture
		if picture == "" {
			picture = "https://placehold.co/400x400/EFEFEF/AAAAAA?text=User"
		}
		nu := &model.User{
			PhoneNumber:     utils.OAuthPhonePlaceholder(),
			Email:           profile.Email,
			Name:            profile.Name,
			ProfileImageURL: nullString(picture),
			Role:            model.RoleCustomer,
			IsActive:        true,
			OAuthProvider:   nullString(provider),
		}
		id, err := h.Users.Create(ctx, nu)
		if err != nil {
			return nil, auth.ErrInternal
		}
		nu.ID = id
		return nu, nil
	default:
		return nil, auth.ErrInternal
	}
}

func (h *OAuthHandler) redirectError(c echo.Context, msg string) error {
	q := url.Values{}
	q.Set("error", msg)
	return c.Redirect(http.StatusFound, h.Cfg.FrontendURL+"/auth/callback?"+q.Encode())
}
