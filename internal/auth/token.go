package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer      = "filmfest"
	defaultAccessTTL   = time.Hour
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultRememberTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the payload of an access token. Permissions are a snapshot
// taken at issuance; a mid-session role change is not visible until the next
// issuance (refresh or login).
type AccessClaims struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	SiteMode    SiteMode `json:"siteMode"`
	Permissions []string `json:"permissions"`
	SessionID   string   `json:"sessionId"`
	TokenType   string   `json:"tt"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the snapshot contains perm.
func (c *AccessClaims) HasPermission(perm Permission) bool {
	for _, p := range c.Permissions {
		if p == string(perm) {
			return true
		}
	}
	return false
}

// HasAll reports whether every permission in perms is present.
func (c *AccessClaims) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !c.HasPermission(p) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one permission in perms is present.
func (c *AccessClaims) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if c.HasPermission(p) {
			return true
		}
	}
	return false
}

// RefreshClaims is the payload of a refresh token: just enough to re-derive
// an access token, no permissions. SiteMode is fixed at issuance; refreshing
// in one portal can never yield credentials for another.
type RefreshClaims struct {
	UserID     string   `json:"userId"`
	SessionID  string   `json:"sessionId"`
	SiteMode   SiteMode `json:"siteMode"`
	TokenType  string   `json:"tt"`
	Generation int      `json:"gen"`
	jwt.RegisteredClaims
}

// TokenConfig carries the signing material and lifetimes for TokenService.
// Secrets come from the environment in cmd/api; nothing here is global state.
type TokenConfig struct {
	Secret      []byte
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	RememberTTL time.Duration
}

// TokenService issues and verifies the HS256-signed credentials used by all
// three portals. Verification is a pure computation and safe for concurrent
// use.
type TokenService struct {
	cfg TokenConfig
	kid string
	now func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService validates cfg and fills in defaults.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = defaultRememberTTL
	}
	sum := sha256.Sum256(cfg.Secret)
	svc := &TokenService{
		cfg: cfg,
		kid: hex.EncodeToString(sum[:4]),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the refresh lifetime for the given remember-me choice.
func (s *TokenService) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RememberTTL
	}
	return s.cfg.RefreshTTL
}

// IssueAccessToken signs an access token for user scoped to mode, embedding
// the current permission catalog entry for the user's role.
func (s *TokenService) IssueAccessToken(user *User, mode SiteMode, sessionID string) (string, time.Time, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, errors.New("auth: user is required")
	}
	if !mode.Valid() {
		return "", time.Time{}, errors.New("auth: site mode is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", time.Time{}, errors.New("auth: session id is required")
	}

	now := s.now().UTC()
	exp := now.Add(s.cfg.AccessTTL)
	claims := AccessClaims{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		SiteMode:    mode,
		Permissions: PermissionStrings(user.Role),
		SessionID:   sessionID,
		TokenType:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token bound to one session generation.
func (s *TokenService) IssueRefreshToken(userID string, mode SiteMode, sessionID string, generation int, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return "", time.Time{}, errors.New("auth: user id and session id are required")
	}
	if !mode.Valid() {
		return "", time.Time{}, errors.New("auth: site mode is required")
	}
	if ttl <= 0 {
		ttl = s.cfg.RefreshTTL
	}

	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := RefreshClaims{
		UserID:     userID,
		SessionID:  sessionID,
		SiteMode:   mode,
		TokenType:  tokenTypeRefresh,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess checks signature, expiry and token type. Every failure mode
// collapses into ErrInvalidToken: callers must not leak which check failed.
func (s *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.SessionID) == "" || !claims.SiteMode.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh checks signature, expiry and token type for a refresh token.
func (s *TokenService) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.SessionID) == "" || !claims.SiteMode.Valid() {
		return nil, ErrInvalidToken
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.kid
	return token.SignedString(s.cfg.Secret)
}

func (s *TokenService) parse(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.cfg.Secret, nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
