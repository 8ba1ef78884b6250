package signature

import (
	"testing"
)

func TestResolveField(t *testing.T) {
	ctx := RenderContext{
		User: User{
			FirstName:  "Jane",
			LastName:   "Doe",
			Email:      "jane@acme.test",
			Title:      "CTO",
			Department: "Engineering",
			Phone:      "+1 555 0100",
			Mobile:     "+1 555 0101",
			AvatarURL:  "https://acme.test/jane.png",
		},
		Organization: Organization{Name: "Acme"},
	}

	tests := []struct {
		field    string
		want     string
		resolved bool
	}{
		{"firstName", "Jane", true},
		{"lastName", "Doe", true},
		{"fullName", "Jane Doe", true},
		{"email", "jane@acme.test", true},
		{"title", "CTO", true},
		{"department", "Engineering", true},
		{"phone", "+1 555 0100", true},
		{"mobile", "+1 555 0101", true},
		{"company", "Acme", true},
		{"avatar", "https://acme.test/jane.png", true},
		{"unknownField", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := resolveField(tt.field, ctx)
			if ok != tt.resolved {
				t.Errorf("resolveField(%q) resolved = %v, want %v", tt.field, ok, tt.resolved)
			}
			if got != tt.want {
				t.Errorf("resolveField(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestResolveField_FullName(t *testing.T) {
	tests := []struct {
		name     string
		first    string
		last     string
		want     string
		resolved bool
	}{
		{"both present", "Jane", "Doe", "Jane Doe", true},
		{"first only", "Jane", "", "Jane", true},
		{"last only", "", "Doe", "Doe", true},
		{"both absent", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := RenderContext{User: User{FirstName: tt.first, LastName: tt.last}}
			got, ok := resolveField("fullName", ctx)
			if ok != tt.resolved {
				t.Errorf("resolveField(fullName) resolved = %v, want %v", ok, tt.resolved)
			}
			if got != tt.want {
				t.Errorf("resolveField(fullName) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveField_CompanyFallsBackToOrganization(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		org      string
		want     string
		resolved bool
	}{
		{"user company wins", "Acme Labs", "Acme", "Acme Labs", true},
		{"falls back to org name", "", "Acme", "Acme", true},
		{"both absent", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := RenderContext{
				User:         User{Company: tt.user},
				Organization: Organization{Name: tt.org},
			}
			got, ok := resolveField("company", ctx)
			if ok != tt.resolved {
				t.Errorf("resolved = %v, want %v", ok, tt.resolved)
			}
			if got != tt.want {
				t.Errorf("company = %q, want %q", got, tt.want)
			}
		})
	}
}
