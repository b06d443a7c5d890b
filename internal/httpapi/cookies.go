package httpapi

import (
	"net/http"
	"time"

	"filmfest.org/internal/auth"
)

// CookieStore is the per-portal credential carrier. Each site mode owns a
// disjoint cookie triple (access, refresh, session marker); writing one
// namespace never touches the other two, which is what keeps a browser from
// silently carrying elevated credentials across portals.
type CookieStore struct {
	secure bool
	tokens *auth.TokenService
}

func NewCookieStore(tokens *auth.TokenService, secure bool) *CookieStore {
	return &CookieStore{secure: secure, tokens: tokens}
}

func modeSlug(mode auth.SiteMode) string {
	switch mode {
	case auth.SiteAdministrative:
		return "admin"
	case auth.SiteFilmmaker:
		return "filmmaker"
	default:
		return "public"
	}
}

func (c *CookieStore) accessName(mode auth.SiteMode) string {
	return "ff_" + modeSlug(mode) + "_access"
}

func (c *CookieStore) refreshName(mode auth.SiteMode) string {
	return "ff_" + modeSlug(mode) + "_refresh"
}

func (c *CookieStore) markerName(mode auth.SiteMode) string {
	return "ff_" + modeSlug(mode) + "_session"
}

func (c *CookieStore) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Set stores a token pair under the namespace of mode.
func (c *CookieStore) Set(w http.ResponseWriter, mode auth.SiteMode, sessionID string, tokens auth.TokenPair) {
	now := time.Now()
	accessAge := int(tokens.AccessExpiresAt.Sub(now).Seconds())
	refreshAge := int(tokens.RefreshExpiresAt.Sub(now).Seconds())
	http.SetCookie(w, c.cookie(c.accessName(mode), tokens.AccessToken, accessAge))
	http.SetCookie(w, c.cookie(c.refreshName(mode), tokens.RefreshToken, refreshAge))
	http.SetCookie(w, c.cookie(c.markerName(mode), sessionID, refreshAge))
}

// Clear removes the triple for mode only.
func (c *CookieStore) Clear(w http.ResponseWriter, mode auth.SiteMode) {
	http.SetCookie(w, c.cookie(c.accessName(mode), "", -1))
	http.SetCookie(w, c.cookie(c.refreshName(mode), "", -1))
	http.SetCookie(w, c.cookie(c.markerName(mode), "", -1))
}

// AccessToken reads the raw access token for mode, if present.
func (c *CookieStore) AccessToken(r *http.Request, mode auth.SiteMode) (string, bool) {
	return c.read(r, c.accessName(mode))
}

// RefreshToken reads the raw refresh token for mode, if present.
func (c *CookieStore) RefreshToken(r *http.Request, mode auth.SiteMode) (string, bool) {
	return c.read(r, c.refreshName(mode))
}

// CurrentUser verifies the access slot of mode and returns its claims. This
// is a query, not an assertion: an absent or invalid token yields false, not
// an error.
func (c *CookieStore) CurrentUser(r *http.Request, mode auth.SiteMode) (*auth.AccessClaims, bool) {
	raw, ok := c.read(r, c.accessName(mode))
	if !ok {
		return nil, false
	}
	claims, err := c.tokens.VerifyAccess(raw)
	if err != nil {
		return nil, false
	}
	if claims.SiteMode != mode {
		return nil, false
	}
	return claims, true
}

func (c *CookieStore) read(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
