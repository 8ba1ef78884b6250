package signature

// User is the per-recipient projection available to variable blocks.
// Every field is optional; absent data is never fatal.
type User struct {
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Title      string `json:"title,omitempty"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Mobile     string `json:"mobile,omitempty"`
	Company    string `json:"company,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
}

// Organization is the org-level projection available to variable blocks.
type Organization struct {
	Name string `json:"name,omitempty"`
}

// RenderContext is the only source of dynamic data during compilation.
// It is constructed by the caller, read-only, and discarded afterwards.
type RenderContext struct {
	User         User         `json:"user"`
	Organization Organization `json:"organization"`
}
