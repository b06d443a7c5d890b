package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"filmfest.org/internal/auth"
)

func newTestCookieStore(t *testing.T) (*CookieStore, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte("cookie-test-signing-secret")})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewCookieStore(tokens, false), tokens
}

func testPair(t *testing.T, tokens *auth.TokenService, mode auth.SiteMode, sessionID string) auth.TokenPair {
	t.Helper()
	user := &auth.User{ID: "u1", Email: "a@x.com", Role: auth.RoleAdministrator, Active: true}
	access, accessExp, err := tokens.IssueAccessToken(user, mode, sessionID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	refresh, refreshExp, err := tokens.IssueRefreshToken(user.ID, mode, sessionID, 1, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	return auth.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
}

func TestCookieNamespacesAreDisjoint(t *testing.T) {
	store, tokens := newTestCookieStore(t)

	rec := httptest.NewRecorder()
	store.Set(rec, auth.SiteAdministrative, "s-admin", testPair(t, tokens, auth.SiteAdministrative, "s-admin"))
	store.Set(rec, auth.SitePublicFestival, "s-public", testPair(t, tokens, auth.SitePublicFestival, "s-public"))

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = true
		if !c.HttpOnly {
			t.Fatalf("cookie %s not httpOnly", c.Name)
		}
		if c.SameSite != http.SameSiteLaxMode {
			t.Fatalf("cookie %s not SameSite=Lax", c.Name)
		}
		if c.Path != "/" {
			t.Fatalf("cookie %s path %q", c.Name, c.Path)
		}
	}
	for _, want := range []string{
		"ff_admin_access", "ff_admin_refresh", "ff_admin_session",
		"ff_public_access", "ff_public_refresh", "ff_public_session",
	} {
		if !names[want] {
			t.Fatalf("missing cookie %s (have %v)", want, names)
		}
	}
	for name := range names {
		if len(name) > 3 && name[:3] != "ff_" {
			t.Fatalf("unexpected cookie %s", name)
		}
	}
}

func TestClearTouchesOnlyOneNamespace(t *testing.T) {
	store, _ := newTestCookieStore(t)

	rec := httptest.NewRecorder()
	store.Clear(rec, auth.SiteFilmmaker)

	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case "ff_filmmaker_access", "ff_filmmaker_refresh", "ff_filmmaker_session":
			if c.MaxAge != -1 {
				t.Fatalf("cookie %s not expired: MaxAge=%d", c.Name, c.MaxAge)
			}
		default:
			t.Fatalf("Clear wrote outside the filmmaker namespace: %s", c.Name)
		}
	}
}

// A public-portal token copied into the admin access slot must not grant an
// admin identity.
func TestCurrentUserRejectsCrossPortalToken(t *testing.T) {
	store, tokens := newTestCookieStore(t)
	pair := testPair(t, tokens, auth.SitePublicFestival, "s1")

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "ff_admin_access", Value: pair.AccessToken})

	if _, ok := store.CurrentUser(req, auth.SiteAdministrative); ok {
		t.Fatal("cross-portal token accepted")
	}
	// The same token in its own namespace is fine.
	req2 := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req2.AddCookie(&http.Cookie{Name: "ff_public_access", Value: pair.AccessToken})
	claims, ok := store.CurrentUser(req2, auth.SitePublicFestival)
	if !ok {
		t.Fatal("token rejected in its own namespace")
	}
	if claims.UserID != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCurrentUserWithGarbage(t *testing.T) {
	store, _ := newTestCookieStore(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := store.CurrentUser(req, auth.SitePublicFestival); ok {
		t.Fatal("no cookie should mean no user")
	}
	req.AddCookie(&http.Cookie{Name: "ff_public_access", Value: "not-a-jwt"})
	if _, ok := store.CurrentUser(req, auth.SitePublicFestival); ok {
		t.Fatal("garbage cookie should mean no user")
	}
}
