// Package signature compiles block-structured signature templates into
// email-client-safe HTML. The pipeline is a pure transform: blocks plus
// a render context go in, table-based inline-styled HTML plus warnings
// come out. It performs no I/O and never fails outright; every problem
// inside a block degrades to an empty fragment and a diagnostic.
package signature

import (
	"time"
)

// BlockType identifies the kind of a signature block.
type BlockType string

const (
	BlockText        BlockType = "text"
	BlockImage       BlockType = "image"
	BlockVariable    BlockType = "variable"
	BlockBanner      BlockType = "banner"
	BlockDisclaimer  BlockType = "disclaimer"
	BlockDivider     BlockType = "divider"
	BlockSocialLinks BlockType = "socialLinks"
	BlockSpacer      BlockType = "spacer"
)

// Block is one typed unit of signature content. The Type field selects
// which of the remaining fields are meaningful; unused fields are left
// at their zero value and omitted from JSON.
type Block struct {
	Type BlockType `json:"type"`

	// text, disclaimer
	Content string `json:"content,omitempty"`

	// image, banner
	URL    string `json:"url,omitempty"`
	Alt    string `json:"alt,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"` // also spacer gap height
	Link   string `json:"link,omitempty"`

	// variable
	Field    string `json:"field,omitempty"`
	Fallback string `json:"fallback,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Suffix   string `json:"suffix,omitempty"`

	// banner visibility window
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`

	// divider
	Color     string `json:"color,omitempty"`
	Thickness int    `json:"thickness,omitempty"`

	// socialLinks
	Links    []SocialLink `json:"links,omitempty"`
	IconSize int          `json:"iconSize,omitempty"`

	Styles *Styles `json:"styles,omitempty"`
}

// SocialLink is one (platform, URL) pair in a socialLinks block.
// Order is preserved through rendering.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Styles carries optional text styling overrides for a block.
type Styles struct {
	FontSize   int    `json:"fontSize,omitempty"`
	Color      string `json:"color,omitempty"`
	FontFamily string `json:"fontFamily,omitempty"`
}

// Style defaults applied when a block carries no override.
const (
	DefaultFontSize   = 14
	DefaultColor      = "#000000"
	DefaultFontFamily = "Arial, Helvetica, sans-serif"
)

// knownPlatforms lists the social platforms the renderer has icons
// for. Entries outside this set are skipped with a diagnostic so that
// templates authored against a since-removed platform still compile.
var knownPlatforms = map[string]bool{
	"facebook":  true,
	"twitter":   true,
	"linkedin":  true,
	"instagram": true,
	"youtube":   true,
	"github":    true,
}
