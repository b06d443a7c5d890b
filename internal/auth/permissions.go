package auth

import "sort"

// Permission is an opaque capability key compared for set membership only.
// Suffixes such as .own, .assigned and .public are scoping qualifiers the
// calling code applies when filtering result sets; this package only proves
// the qualifier is present.
type Permission string

const (
	PermUsersRead   Permission = "users.read"
	PermUsersWrite  Permission = "users.write"
	PermUsersDelete Permission = "users.delete"

	PermFilmsRead         Permission = "films.read"
	PermFilmsWrite        Permission = "films.write"
	PermFilmsDelete       Permission = "films.delete"
	PermFilmsReadOwn      Permission = "films.read.own"
	PermFilmsWriteOwn     Permission = "films.write.own"
	PermFilmsSubmitOwn    Permission = "films.submit.own"
	PermFilmsReadPublic   Permission = "films.read.public"
	PermFilmsReadAssigned Permission = "films.read.assigned"
	PermFilmsReview       Permission = "films.review"

	PermVenuesRead   Permission = "venues.read"
	PermVenuesWrite  Permission = "venues.write"
	PermVenuesDelete Permission = "venues.delete"

	PermScreeningsRead       Permission = "screenings.read"
	PermScreeningsWrite      Permission = "screenings.write"
	PermScreeningsDelete     Permission = "screenings.delete"
	PermScreeningsReadOwn    Permission = "screenings.read.own"
	PermScreeningsReadPublic Permission = "screenings.read.public"

	PermTicketsRead     Permission = "tickets.read"
	PermTicketsWrite    Permission = "tickets.write"
	PermTicketsRefund   Permission = "tickets.refund"
	PermTicketsPurchase Permission = "tickets.purchase"
	PermTicketsReadOwn  Permission = "tickets.read.own"

	PermPaymentsRead    Permission = "payments.read"
	PermPaymentsRefund  Permission = "payments.refund"
	PermPaymentsReadOwn Permission = "payments.read.own"

	PermReportsRead        Permission = "reports.read"
	PermReportsExport      Permission = "reports.export"
	PermReportsReadSponsor Permission = "reports.read.sponsor"

	PermReviewsReadOwn  Permission = "reviews.read.own"
	PermReviewsWriteOwn Permission = "reviews.write.own"

	PermSettingsRead  Permission = "settings.read"
	PermSettingsWrite Permission = "settings.write"

	PermSponsorsReadOwn  Permission = "sponsors.read.own"
	PermSponsorsWriteOwn Permission = "sponsors.write.own"

	PermVendorsReadOwn  Permission = "vendors.read.own"
	PermVendorsWriteOwn Permission = "vendors.write.own"
)

// rolePermissions is the authoritative role -> permission catalog. It is
// read-only after init; PermissionsFor hands out copies.
var rolePermissions = map[Role][]Permission{
	RoleAdministrator: {
		PermUsersRead, PermUsersWrite, PermUsersDelete,
		PermFilmsRead, PermFilmsWrite, PermFilmsDelete,
		PermVenuesRead, PermVenuesWrite, PermVenuesDelete,
		PermScreeningsRead, PermScreeningsWrite, PermScreeningsDelete,
		PermTicketsRead, PermTicketsWrite, PermTicketsRefund,
		PermPaymentsRead, PermPaymentsRefund,
		PermReportsRead, PermReportsExport,
		PermSettingsRead, PermSettingsWrite,
	},
	RoleFestivalStaff: {
		PermFilmsRead, PermFilmsWrite,
		PermVenuesRead, PermVenuesWrite,
		PermScreeningsRead, PermScreeningsWrite,
		PermTicketsRead, PermTicketsWrite,
		PermReportsRead, PermReportsExport,
	},
	RoleFilmmaker: {
		PermFilmsReadOwn, PermFilmsWriteOwn, PermFilmsSubmitOwn,
		PermScreeningsReadOwn,
		PermTicketsPurchase,
		PermPaymentsReadOwn,
	},
	RoleAttendee: {
		PermFilmsReadPublic,
		PermScreeningsReadPublic,
		PermTicketsPurchase, PermTicketsReadOwn,
		PermPaymentsReadOwn,
	},
	RoleJudge: {
		PermFilmsReadAssigned, PermFilmsReview,
		PermReviewsReadOwn, PermReviewsWriteOwn,
	},
	RoleSponsor: {
		PermSponsorsReadOwn, PermSponsorsWriteOwn,
		PermReportsReadSponsor,
	},
	RoleVendor: {
		PermVendorsReadOwn, PermVendorsWriteOwn,
		PermPaymentsReadOwn,
	},
}

// PermissionsFor returns the permission set for role, sorted, as a fresh
// slice. Unknown roles get an empty set.
func PermissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PermissionStrings returns the catalog entry for role as plain strings,
// the shape embedded into access tokens.
func PermissionStrings(role Role) []string {
	perms := PermissionsFor(role)
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
