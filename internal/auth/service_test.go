package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryDirectory, *time.Time) {
	t.Helper()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tokens, err := NewTokenService(TokenConfig{Secret: testSecret}, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	dir := NewMemoryDirectory()
	svc, err := NewService(dir, NewMemorySessionRegistry(), tokens, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, dir, &now
}

func seedUser(t *testing.T, dir *MemoryDirectory, email, password string, role Role) *User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user, err := dir.CreateUser(context.Background(), UserFields{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestLoginAttendeePublicPortal(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	res, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Session.SiteMode != SitePublicFestival || res.Session.Generation != 1 {
		t.Fatalf("unexpected session: %+v", res.Session)
	}

	claims, err := svc.Tokens().VerifyAccess(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if !claims.HasPermission(PermTicketsPurchase) {
		t.Fatal("attendee token missing tickets.purchase")
	}
	if claims.HasPermission(PermFilmsWrite) {
		t.Fatal("attendee token must not carry films.write")
	}
	if claims.SessionID != res.Session.ID {
		t.Fatalf("token session mismatch: %s vs %s", claims.SessionID, res.Session.ID)
	}
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	_, errUnknown := svc.Login(context.Background(), Credentials{Email: "nobody@x.com", Password: "correct"}, SitePublicFestival)
	_, errWrongPw := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "wrong"}, SitePublicFestival)

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("failure messages differ: %q vs %q", errUnknown, errWrongPw)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	svc, dir, _ := newTestService(t)
	user := seedUser(t, dir, "a@x.com", "correct", RoleAttendee)
	inactive := false
	if _, err := dir.UpdateUser(context.Background(), user.ID, UserUpdate{Active: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if _, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive user, got %v", err)
	}
}

func TestLoginRoleIncompatibleWithPortal(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	// Correct credentials, wrong portal: rejected at the authorization
	// stage, not the credential stage.
	if _, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SiteAdministrative); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRefreshSiteModeMismatch(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "f@x.com", "correct", RoleFilmmaker)

	res, err := svc.Login(context.Background(), Credentials{Email: "f@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	// A public-festival refresh token presented to the filmmaker portal is
	// invalid regardless of signature validity.
	if _, err := svc.Refresh(context.Background(), res.Tokens.RefreshToken, SiteFilmmaker); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for cross-portal refresh, got %v", err)
	}
}

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	svc, dir, now := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	login, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	*now = now.Add(30 * time.Minute)
	first, err := svc.Refresh(context.Background(), login.Tokens.RefreshToken, SitePublicFestival)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if first.Session.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", first.Session.Generation)
	}
	if first.Tokens.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh token did not rotate")
	}

	// Replaying the rotated-out token is a compromise signal: it fails and
	// the session dies, taking the new token with it.
	if _, err := svc.Refresh(context.Background(), login.Tokens.RefreshToken, SitePublicFestival); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for reused token, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), first.Tokens.RefreshToken, SitePublicFestival); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked session to reject refresh, got %v", err)
	}
}

func TestRefreshRederivesPermissionsFromLiveRole(t *testing.T) {
	svc, dir, now := newTestService(t)
	user := seedUser(t, dir, "j@x.com", "correct", RoleAttendee)

	login, err := svc.Login(context.Background(), Credentials{Email: "j@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	promoted := RoleJudge
	if _, err := dir.UpdateUser(context.Background(), user.ID, UserUpdate{Role: &promoted}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	*now = now.Add(10 * time.Minute)
	res, err := svc.Refresh(context.Background(), login.Tokens.RefreshToken, SitePublicFestival)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := svc.Tokens().VerifyAccess(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if !claims.HasPermission(PermFilmsReview) {
		t.Fatal("refreshed token missing judge permission")
	}
	if claims.HasPermission(PermTicketsPurchase) {
		t.Fatal("refreshed token still carries attendee permission")
	}
}

func TestRefreshSlidesSessionExpiry(t *testing.T) {
	svc, dir, now := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	login, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	*now = now.Add(3 * 24 * time.Hour)
	res, err := svc.Refresh(context.Background(), login.Tokens.RefreshToken, SitePublicFestival)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	want := now.Add(7 * 24 * time.Hour)
	if !res.Session.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.Session.ExpiresAt)
	}
}

func TestRefreshAfterSessionExpiry(t *testing.T) {
	svc, dir, now := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	login, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	*now = now.Add(8 * 24 * time.Hour)
	if _, err := svc.Refresh(context.Background(), login.Tokens.RefreshToken, SitePublicFestival); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after session expiry, got %v", err)
	}
}

func TestRememberMeExtendsWindow(t *testing.T) {
	svc, dir, now := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	res, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct", RememberMe: true}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	want := now.Add(30 * 24 * time.Hour)
	if !res.Session.ExpiresAt.Equal(want) {
		t.Fatalf("expected 30d session, got expiry %v", res.Session.ExpiresAt)
	}
	if !res.Tokens.RefreshExpiresAt.Equal(want) {
		t.Fatalf("expected 30d refresh token, got expiry %v", res.Tokens.RefreshExpiresAt)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	res, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	svc.Logout(context.Background(), res.Tokens.AccessToken, SitePublicFestival)

	if _, err := svc.Refresh(context.Background(), res.Tokens.RefreshToken, SitePublicFestival); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh to fail after logout, got %v", err)
	}

	// Logging out again, or with garbage, is a no-op.
	svc.Logout(context.Background(), res.Tokens.AccessToken, SitePublicFestival)
	svc.Logout(context.Background(), "garbage", SitePublicFestival)
}

func TestLogoutLeavesOtherPortalsAlone(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "admin@x.com", "correct", RoleAdministrator)

	adminSess, err := svc.Login(context.Background(), Credentials{Email: "admin@x.com", Password: "correct"}, SiteAdministrative)
	if err != nil {
		t.Fatalf("Login administrative: %v", err)
	}
	publicSess, err := svc.Login(context.Background(), Credentials{Email: "admin@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login public: %v", err)
	}

	svc.Logout(context.Background(), adminSess.Tokens.AccessToken, SiteAdministrative)

	if _, err := svc.Refresh(context.Background(), publicSess.Tokens.RefreshToken, SitePublicFestival); err != nil {
		t.Fatalf("public session should survive administrative logout: %v", err)
	}
}

func TestRegister(t *testing.T) {
	svc, dir, _ := newTestService(t)

	res, err := svc.Register(context.Background(), Credentials{Email: "New@X.com", Password: "opening-night"}, RoleAttendee, SitePublicFestival)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Email != "new@x.com" {
		t.Fatalf("email not normalized: %s", res.User.Email)
	}
	if res.Session == nil || res.Tokens.AccessToken == "" {
		t.Fatal("register should establish a session")
	}

	if _, err := svc.Register(context.Background(), Credentials{Email: "new@x.com", Password: "other"}, RoleAttendee, SitePublicFestival); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	stored, err := dir.FindUserByEmail(context.Background(), "new@x.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if stored.PasswordHash == "opening-night" {
		t.Fatal("password stored in plaintext")
	}
}

func TestRegisterRoleIncompatibleWithPortal(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), Credentials{Email: "v@x.com", Password: "pw"}, RoleVendor, SiteAdministrative); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, dir, _ := newTestService(t)
	user := seedUser(t, dir, "a@x.com", "old-password", RoleAttendee)

	if err := svc.ChangePassword(context.Background(), user.ID, "wrong", "new-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong current password, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "old-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "new-password"}, SitePublicFestival); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestSessionsListAndRevoke(t *testing.T) {
	svc, dir, _ := newTestService(t)
	user := seedUser(t, dir, "f@x.com", "correct", RoleFilmmaker)

	if _, err := svc.Login(context.Background(), Credentials{Email: "f@x.com", Password: "correct"}, SiteFilmmaker); err != nil {
		t.Fatalf("Login filmmaker: %v", err)
	}
	public, err := svc.Login(context.Background(), Credentials{Email: "f@x.com", Password: "correct"}, SitePublicFestival)
	if err != nil {
		t.Fatalf("Login public: %v", err)
	}

	sessions, err := svc.Sessions(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	n, err := svc.RevokeSessions(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revocations, got %d", n)
	}
	if _, err := svc.Refresh(context.Background(), public.Tokens.RefreshToken, SitePublicFestival); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh to fail after mass revocation, got %v", err)
	}
}

// downDirectory simulates the user directory being unreachable.
type downDirectory struct{}

func (downDirectory) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return nil, errors.New("dial tcp: connection refused")
}
func (downDirectory) FindUser(ctx context.Context, id string) (*User, error) {
	return nil, errors.New("dial tcp: connection refused")
}
func (downDirectory) CreateUser(ctx context.Context, fields UserFields) (*User, error) {
	return nil, errors.New("dial tcp: connection refused")
}
func (downDirectory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestDirectoryOutageIsNotAnAuthFailure(t *testing.T) {
	now := time.Now().UTC()
	tokens, err := NewTokenService(TokenConfig{Secret: testSecret}, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc, err := NewService(downDirectory{}, NewMemorySessionRegistry(), tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Login(context.Background(), Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival)
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("an outage must not masquerade as bad credentials")
	}
}

func TestLoginHonorsContextCancellation(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "a@x.com", "correct", RoleAttendee)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Login(ctx, Credentials{Email: "a@x.com", Password: "correct"}, SitePublicFestival); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
