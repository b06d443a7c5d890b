package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"filmfest.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticate resolves the caller's access token for mode, preferring the
// Authorization header over the portal cookie, and runs the guard. Required
// permissions, if any, use all-of semantics.
func (a *API) authenticate(r *http.Request, mode auth.SiteMode, required ...auth.Permission) (*auth.AccessClaims, error) {
	raw, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		var ok bool
		raw, ok = a.cookies.AccessToken(r, mode)
		if !ok {
			return nil, auth.ErrUnauthorized
		}
	}
	return a.guard.Authorize(raw, mode, required...)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
