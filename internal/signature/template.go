package signature

import (
	"time"
)

// Template is a stored, org-owned signature template: an ordered
// sequence of blocks plus bookkeeping. Block order is rendering order.
// Templates are immutable at render time; the compiler never writes
// back into one.
type Template struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Blocks      []Block   `json:"blocks"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilter contains filters for listing templates.
type ListFilter struct {
	OrgID  string
	Search string
	Limit  int
	Offset int
}

// Stats contains template statistics.
type Stats struct {
	Total int64 `json:"total"`
}
