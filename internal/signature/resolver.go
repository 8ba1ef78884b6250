package signature

import (
	"strings"
)

// resolveField maps a symbolic field name from the closed variable
// vocabulary to its value in the render context. The second return
// value reports whether the field resolved to a non-empty value.
// Unknown field names resolve to ("", false) rather than erroring;
// fallback policy belongs to the renderer, not here.
func resolveField(field string, ctx RenderContext) (string, bool) {
	var v string

	switch field {
	case "firstName":
		v = ctx.User.FirstName
	case "lastName":
		v = ctx.User.LastName
	case "fullName":
		v = joinName(ctx.User.FirstName, ctx.User.LastName)
	case "email":
		v = ctx.User.Email
	case "title":
		v = ctx.User.Title
	case "department":
		v = ctx.User.Department
	case "phone":
		v = ctx.User.Phone
	case "mobile":
		v = ctx.User.Mobile
	case "company":
		v = ctx.User.Company
		if v == "" {
			v = ctx.Organization.Name
		}
	case "avatar":
		v = ctx.User.AvatarURL
	default:
		return "", false
	}

	if v == "" {
		return "", false
	}
	return v, true
}

// joinName joins first and last name with a single space, omitting
// either side when absent.
func joinName(first, last string) string {
	parts := make([]string, 0, 2)
	if first != "" {
		parts = append(parts, first)
	}
	if last != "" {
		parts = append(parts, last)
	}
	return strings.Join(parts, " ")
}
