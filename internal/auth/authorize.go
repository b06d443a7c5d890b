package auth

// Guard performs the per-request check: verified token, role compatible with
// the requested portal, required permissions present in the snapshot.
type Guard struct {
	tokens *TokenService
}

func NewGuard(tokens *TokenService) *Guard {
	return &Guard{tokens: tokens}
}

// Authorize walks the request state machine: no usable token ->
// ErrUnauthorized; role incompatible with mode or a required permission
// missing -> ErrForbidden; otherwise the verified claims.
func (g *Guard) Authorize(rawToken string, mode SiteMode, required ...Permission) (*AccessClaims, error) {
	claims, err := g.tokens.VerifyAccess(rawToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if claims.SiteMode != mode {
		return nil, ErrForbidden
	}
	if !RoleAllowed(claims.Role, mode) {
		return nil, ErrForbidden
	}
	if len(required) > 0 && !claims.HasAll(required...) {
		return nil, ErrForbidden
	}
	return claims, nil
}

// AuthorizeAny is Authorize with any-of permission semantics: at least one of
// perms must be present. Some call sites accept alternative capabilities.
func (g *Guard) AuthorizeAny(rawToken string, mode SiteMode, perms ...Permission) (*AccessClaims, error) {
	claims, err := g.Authorize(rawToken, mode)
	if err != nil {
		return nil, err
	}
	if len(perms) > 0 && !claims.HasAny(perms...) {
		return nil, ErrForbidden
	}
	return claims, nil
}
