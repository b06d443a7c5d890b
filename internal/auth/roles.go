package auth

import (
	"fmt"
	"strings"
)

// Role identifies one of the fixed festival roles. The set is closed; every
// role has an entry in the permission catalog.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleFestivalStaff Role = "festival-staff"
	RoleFilmmaker     Role = "filmmaker"
	RoleAttendee      Role = "attendee"
	RoleJudge         Role = "judge"
	RoleSponsor       Role = "sponsor"
	RoleVendor        Role = "vendor"
)

// Roles lists every known role.
var Roles = []Role{
	RoleAdministrator,
	RoleFestivalStaff,
	RoleFilmmaker,
	RoleAttendee,
	RoleJudge,
	RoleSponsor,
	RoleVendor,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleFestivalStaff, RoleFilmmaker, RoleAttendee, RoleJudge, RoleSponsor, RoleVendor:
		return true
	}
	return false
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// SiteMode identifies one of the three portals. Each keeps its own session
// namespace; credentials issued in one mode are useless in the others.
type SiteMode string

const (
	SitePublicFestival SiteMode = "public-festival"
	SiteAdministrative SiteMode = "administrative"
	SiteFilmmaker      SiteMode = "filmmaker"
)

// SiteModes lists every portal.
var SiteModes = []SiteMode{SitePublicFestival, SiteAdministrative, SiteFilmmaker}

// Valid reports whether m is a known site mode.
func (m SiteMode) Valid() bool {
	switch m {
	case SitePublicFestival, SiteAdministrative, SiteFilmmaker:
		return true
	}
	return false
}

// ParseSiteMode normalizes and validates a site mode string.
func ParseSiteMode(s string) (SiteMode, error) {
	m := SiteMode(strings.TrimSpace(strings.ToLower(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown site mode %q", ErrInvalidInput, s)
	}
	return m, nil
}

// siteModeRoles is the authoritative Role x SiteMode compatibility table.
// The public portal admits every role; the other two are exclusive.
var siteModeRoles = map[SiteMode]map[Role]struct{}{
	SiteAdministrative: {
		RoleAdministrator: {},
		RoleFestivalStaff: {},
	},
	SiteFilmmaker: {
		RoleFilmmaker: {},
	},
	SitePublicFestival: {
		RoleAdministrator: {},
		RoleFestivalStaff: {},
		RoleFilmmaker:     {},
		RoleAttendee:      {},
		RoleJudge:         {},
		RoleSponsor:       {},
		RoleVendor:        {},
	},
}

// RoleAllowed reports whether role may operate the given portal.
func RoleAllowed(role Role, mode SiteMode) bool {
	allowed, ok := siteModeRoles[mode]
	if !ok {
		return false
	}
	_, ok = allowed[role]
	return ok
}
