package signature

import (
	"fmt"
	"time"
)

// iconBaseURL hosts the social platform icon assets referenced by
// socialLinks blocks.
const iconBaseURL = "https://assets.sigilhq.com/icons"

// diagnostics collects non-fatal issues found during a render pass.
// All fail-soft behavior funnels through this one collector so every
// degraded block is observable by the caller. index tracks the block
// currently being rendered so messages can point at it.
type diagnostics struct {
	warnings []string
	index    int
}

func (d *diagnostics) addf(format string, args ...any) {
	d.warnings = append(d.warnings, fmt.Sprintf(format, args...))
}

// renderBlock transforms one block into a layout fragment. It is total:
// a block that cannot produce content renders the empty fragment, and
// structural problems are reported through the diagnostics collector
// instead of failing the pass.
func renderBlock(b Block, ctx RenderContext, ref time.Time, diag *diagnostics) Fragment {
	switch b.Type {
	case BlockText:
		return renderText(b)
	case BlockImage:
		return renderImage(b, diag)
	case BlockVariable:
		return renderVariable(b, ctx)
	case BlockBanner:
		return renderBanner(b, ref, diag)
	case BlockDisclaimer:
		return renderDisclaimer(b)
	case BlockDivider:
		return renderDivider(b)
	case BlockSocialLinks:
		return renderSocialLinks(b, diag)
	case BlockSpacer:
		return renderSpacer(b)
	default:
		diag.addf("block %d: unknown block type %q, skipped", diag.index, b.Type)
		return emptyFragment
	}
}

func renderText(b Block) Fragment {
	if b.Content == "" {
		return emptyFragment
	}
	return Fragment{
		Kind:  FragmentText,
		Text:  b.Content,
		Style: resolveStyle(b.Styles),
	}
}

func renderImage(b Block, diag *diagnostics) Fragment {
	if b.URL == "" {
		diag.addf("block %d: image block has no URL, skipped", diag.index)
		return emptyFragment
	}
	return Fragment{
		Kind:   FragmentImage,
		URL:    b.URL,
		Alt:    b.Alt,
		Width:  b.Width,
		Height: b.Height,
		Link:   b.Link,
	}
}

func renderVariable(b Block, ctx RenderContext) Fragment {
	value, ok := resolveField(b.Field, ctx)
	if !ok {
		value = b.Fallback
	}
	if value == "" {
		return emptyFragment
	}
	return Fragment{
		Kind:  FragmentText,
		Text:  b.Prefix + value + b.Suffix,
		Style: resolveStyle(b.Styles),
	}
}

func renderBanner(b Block, ref time.Time, diag *diagnostics) Fragment {
	w := Window{Start: b.StartDate, End: b.EndDate}
	if !w.Visible(ref) {
		// Out-of-window banners are expected, not an error.
		return emptyFragment
	}
	return renderImage(b, diag)
}

func renderDisclaimer(b Block) Fragment {
	if b.Content == "" {
		return emptyFragment
	}
	st := resolveStyle(b.Styles)
	if b.Styles == nil || b.Styles.FontSize == 0 {
		st.FontSize = 11
	}
	if b.Styles == nil || b.Styles.Color == "" {
		st.Color = "#777777"
	}
	st.Muted = true
	return Fragment{
		Kind:  FragmentText,
		Text:  b.Content,
		Style: st,
	}
}

func renderDivider(b Block) Fragment {
	color := b.Color
	if color == "" {
		color = "#cccccc"
	}
	thickness := b.Thickness
	if thickness <= 0 {
		thickness = 1
	}
	return Fragment{
		Kind:      FragmentRule,
		Color:     color,
		Thickness: thickness,
	}
}

func renderSocialLinks(b Block, diag *diagnostics) Fragment {
	iconSize := b.IconSize
	if iconSize <= 0 {
		iconSize = 24
	}

	items := make([]linkItem, 0, len(b.Links))
	for _, l := range b.Links {
		if !knownPlatforms[l.Platform] {
			diag.addf("block %d: unknown social platform %q, skipped", diag.index, l.Platform)
			continue
		}
		items = append(items, linkItem{
			Platform: l.Platform,
			URL:      l.URL,
			IconURL:  iconBaseURL + "/" + l.Platform + ".png",
		})
	}
	if len(items) == 0 {
		return emptyFragment
	}
	return Fragment{
		Kind:     FragmentLinks,
		Items:    items,
		IconSize: iconSize,
	}
}

func renderSpacer(b Block) Fragment {
	height := b.Height
	if height <= 0 {
		// Zero or negative gaps collapse to a minimal no-op gap
		// instead of inverting the layout.
		height = 1
	}
	return Fragment{Kind: FragmentGap, Gap: height}
}
