package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"filmfest.org/internal/ids"
)

// Service is the facade over the hasher, token service, directory and
// session registry. It holds no per-request state; the only shared resource
// is the hashing semaphore.
type Service struct {
	dir      Directory
	sessions SessionRegistry
	tokens   *TokenService

	// hashSem bounds concurrent bcrypt work so a login burst cannot
	// saturate every CPU.
	hashSem *semaphore.Weighted
	now     func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithHashConcurrency overrides the number of bcrypt calls allowed in flight.
func WithHashConcurrency(n int) ServiceOption {
	return func(s *Service) error {
		if n <= 0 {
			return errors.New("auth: hash concurrency must be positive")
		}
		s.hashSem = semaphore.NewWeighted(int64(n))
		return nil
	}
}

// NewService constructs the facade.
func NewService(dir Directory, sessions SessionRegistry, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	if sessions == nil {
		return nil, errors.New("auth: session registry is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{
		dir:      dir,
		sessions: sessions,
		tokens:   tokens,
		hashSem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the underlying token service for guard construction.
func (s *Service) Tokens() *TokenService { return s.tokens }

// TokenPair carries both credentials with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Credentials is the login input.
type Credentials struct {
	Email      string
	Password   string
	RememberMe bool
	IPAddress  string
	UserAgent  string
}

// LoginResult is what a successful login, register or refresh produces.
type LoginResult struct {
	User    *User
	Session *Session
	Tokens  TokenPair
}

// Login verifies credentials and issues a fresh session and token pair
// scoped to mode. Unknown email and wrong password are indistinguishable to
// the caller. A correct password with a role the portal does not admit fails
// with ErrForbidden (the authorization stage, not the credential stage).
func (s *Service) Login(ctx context.Context, creds Credentials, mode SiteMode) (*LoginResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: site mode", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(creds.Email))
	if email == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.dir.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a hash anyway so timing does not reveal whether
			// the account exists.
			_ = s.verifyPassword(ctx, dummyHash, creds.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	ok, err := s.verifyPasswordErr(ctx, user.PasswordHash, creds.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !RoleAllowed(user.Role, mode) {
		return nil, ErrForbidden
	}
	return s.establish(ctx, user, mode, creds)
}

// Register hashes the password, delegates creation to the directory and then
// follows the login issuance path for the new user.
func (s *Service) Register(ctx context.Context, creds Credentials, role Role, mode SiteMode) (*LoginResult, error) {
	if !mode.Valid() || !role.Valid() {
		return nil, fmt.Errorf("%w: role and site mode", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(creds.Email))
	if email == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: email and password", ErrInvalidInput)
	}
	if !RoleAllowed(role, mode) {
		return nil, ErrForbidden
	}

	hash, err := s.hashPassword(ctx, creds.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.dir.CreateUser(ctx, UserFields{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return s.establish(ctx, user, mode, creds)
}

// establish creates the session record and token pair. The registry write is
// the final step; an aborted request never leaves a live session behind.
func (s *Service) establish(ctx context.Context, user *User, mode SiteMode, creds Credentials) (*LoginResult, error) {
	now := s.now().UTC()
	sessionTTL := s.tokens.RefreshTTL(creds.RememberMe)
	sess := &Session{
		ID:           ids.New(),
		UserID:       user.ID,
		SiteMode:     mode,
		Generation:   1,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(sessionTTL),
		IPAddress:    creds.IPAddress,
		UserAgent:    creds.UserAgent,
	}

	access, accessExp, err := s.tokens.IssueAccessToken(user, mode, sess.ID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user.ID, mode, sess.ID, sess.Generation, sessionTTL)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	return &LoginResult{
		User:    user,
		Session: sess,
		Tokens: TokenPair{
			AccessToken:      access,
			RefreshToken:     refresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		},
	}, nil
}

// Refresh exchanges a refresh token for a new pair in the same portal.
// Permissions are re-derived from the live role, not from the stale access
// snapshot; a role change takes effect here. The refresh token rotates: the
// session generation increments and the presented token's generation must
// match the registry, otherwise the session is revoked as compromised.
func (s *Service) Refresh(ctx context.Context, rawRefresh string, mode SiteMode) (*LoginResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: site mode", ErrInvalidInput)
	}
	claims, err := s.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.SiteMode != mode {
		return nil, ErrInvalidToken
	}

	sess, err := s.sessions.Find(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	now := s.now().UTC()
	if !sess.Live(now) || sess.SiteMode != mode {
		return nil, ErrInvalidToken
	}
	if claims.Generation != sess.Generation {
		// Reuse of a rotated token. Kill the session.
		_ = s.sessions.Revoke(ctx, sess.ID)
		return nil, ErrInvalidToken
	}

	user, err := s.dir.FindUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !user.Active || !RoleAllowed(user.Role, mode) {
		return nil, ErrInvalidToken
	}

	// The session window (7d or 30d) is the presented token's own lifetime;
	// sliding it forward preserves the remember-me choice made at login.
	window := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	expiresAt := now.Add(window)
	generation := sess.Generation + 1
	access, accessExp, err := s.tokens.IssueAccessToken(user, mode, sess.ID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user.ID, mode, sess.ID, generation, window)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, sess.ID, generation, now, expiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	sess.Generation = generation
	sess.LastActivity = now
	sess.ExpiresAt = expiresAt

	return &LoginResult{
		User:    user,
		Session: sess,
		Tokens: TokenPair{
			AccessToken:      access,
			RefreshToken:     refresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		},
	}, nil
}

// Logout revokes the session carried by the given access token. An invalid
// token is not an error: clearing the cookie namespace is all the caller
// needs, and logout must be idempotent.
func (s *Service) Logout(ctx context.Context, rawAccess string, mode SiteMode) {
	claims, err := s.tokens.VerifyAccess(rawAccess)
	if err != nil || claims.SiteMode != mode {
		return
	}
	_ = s.sessions.Revoke(ctx, claims.SessionID)
}

// ChangePassword verifies the current password and stores a new hash through
// the directory boundary.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if strings.TrimSpace(userID) == "" || next == "" {
		return fmt.Errorf("%w: user id and new password", ErrInvalidInput)
	}
	user, err := s.dir.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	ok, err := s.verifyPasswordErr(ctx, user.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	hash, err := s.hashPassword(ctx, next)
	if err != nil {
		return err
	}
	if _, err := s.dir.UpdateUser(ctx, userID, UserUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return nil
}

// Sessions lists the caller's sessions across all portals.
func (s *Service) Sessions(ctx context.Context, userID string) ([]*Session, error) {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return list, nil
}

// RevokeSessions revokes every session of the user and reports how many.
func (s *Service) RevokeSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return n, nil
}

// dummyHash is a bcrypt hash of an unguessable throwaway value, used to keep
// login timing flat when the email is unknown.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

func (s *Service) hashPassword(ctx context.Context, password string) (string, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.hashSem.Release(1)
	return HashPassword(password)
}

func (s *Service) verifyPassword(ctx context.Context, hash, password string) bool {
	ok, _ := s.verifyPasswordErr(ctx, hash, password)
	return ok
}

func (s *Service) verifyPasswordErr(ctx context.Context, hash, password string) (bool, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.hashSem.Release(1)
	return VerifyPassword(hash, password), nil
}
