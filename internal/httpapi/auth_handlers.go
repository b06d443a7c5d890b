package httpapi

import (
	"net/http"
	"time"

	"filmfest.org/internal/audit"
	"filmfest.org/internal/auth"
	"filmfest.org/internal/obs"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	SiteMode   string `json:"site_mode"`
	RememberMe bool   `json:"remember_me"`
}

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	SiteMode   string `json:"site_mode"`
	RememberMe bool   `json:"remember_me"`
}

type siteModeRequest struct {
	SiteMode string `json:"site_mode"`
}

type changePasswordRequest struct {
	SiteMode        string `json:"site_mode"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID     string    `json:"id"`
	Email  string    `json:"email"`
	Role   auth.Role `json:"role"`
	Active bool      `json:"active"`
}

type sessionResponse struct {
	User             userResponse  `json:"user"`
	SessionID        string        `json:"session_id"`
	SiteMode         auth.SiteMode `json:"site_mode"`
	AccessExpiresAt  time.Time     `json:"access_expires_at"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role, Active: u.Active}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := auth.ParseSiteMode(req.SiteMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown site mode")
		return
	}

	res, err := a.auth.Login(r.Context(), auth.Credentials{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	}, mode)
	if err != nil {
		obs.ObserveLogin(string(mode), "failure")
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"site_mode": mode,
		})
		writeAuthError(w, r, err)
		return
	}

	obs.ObserveLogin(string(mode), "success")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":   res.User.ID,
		"site_mode": mode,
		"session":   res.Session.ID,
	})

	a.cookies.Set(w, mode, res.Session.ID, res.Tokens)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:             toUserResponse(res.User),
		SessionID:        res.Session.ID,
		SiteMode:         mode,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := auth.ParseSiteMode(req.SiteMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown site mode")
		return
	}
	role := auth.RoleAttendee
	if req.Role != "" {
		role, err = auth.ParseRole(req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unknown role")
			return
		}
	}
	// Privileged roles are provisioned by operators, never self-registered.
	if role == auth.RoleAdministrator || role == auth.RoleFestivalStaff {
		writeAuthError(w, r, auth.ErrForbidden)
		return
	}

	res, err := a.auth.Register(r.Context(), auth.Credentials{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	}, role, mode)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id":   res.User.ID,
		"site_mode": mode,
		"role":      role,
	})

	a.cookies.Set(w, mode, res.Session.ID, res.Tokens)
	writeJSON(w, http.StatusCreated, sessionResponse{
		User:             toUserResponse(res.User),
		SessionID:        res.Session.ID,
		SiteMode:         mode,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req siteModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := auth.ParseSiteMode(req.SiteMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown site mode")
		return
	}

	raw, ok := a.cookies.RefreshToken(r, mode)
	if !ok {
		obs.ObserveRefresh(string(mode), "failure")
		writeAuthError(w, r, auth.ErrUnauthorized)
		return
	}
	res, err := a.auth.Refresh(r.Context(), raw, mode)
	if err != nil {
		obs.ObserveRefresh(string(mode), "failure")
		// A dead refresh token is not coming back; drop the namespace.
		a.cookies.Clear(w, mode)
		writeAuthError(w, r, err)
		return
	}

	obs.ObserveRefresh(string(mode), "success")
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id":   res.User.ID,
		"site_mode": mode,
		"session":   res.Session.ID,
	})

	a.cookies.Set(w, mode, res.Session.ID, res.Tokens)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:             toUserResponse(res.User),
		SessionID:        res.Session.ID,
		SiteMode:         mode,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req siteModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := auth.ParseSiteMode(req.SiteMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown site mode")
		return
	}

	if raw, ok := a.cookies.AccessToken(r, mode); ok {
		a.auth.Logout(r.Context(), raw, mode)
	}
	a.cookies.Clear(w, mode)
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"site_mode": mode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out", "site_mode": mode})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	mode, err := auth.ParseSiteMode(r.URL.Query().Get("site_mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown site mode")
		return
	}
	claims, ok := a.cookies.CurrentUser(r, mode)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    claims.UserID,
			"email": claims.Email,
			"role":  claims.Role,
		},
		"site_mode":   claims.SiteMode,
		"session_id":  claims.SessionID,
		"permissions": claims.Permissions,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := auth.ParseSiteMode(req.SiteMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown site mode")
		return
	}
	claims, err := a.authenticate(r, mode)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	r = r.WithContext(auth.ContextWithClaims(r.Context(), claims))
	if err := a.auth.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	mode, err := auth.ParseSiteMode(r.URL.Query().Get("site_mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown site mode")
		return
	}
	claims, err := a.authenticate(r, mode)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	r = r.WithContext(auth.ContextWithClaims(r.Context(), claims))

	switch r.Method {
	case http.MethodGet:
		sessions, err := a.auth.Sessions(r.Context(), claims.UserID)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	case http.MethodDelete:
		n, err := a.auth.RevokeSessions(r.Context(), claims.UserID)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.sessions_revoked", map[string]any{
			"count": n,
		})
		writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}
