package signature

// FragmentKind identifies the shape of an intermediate layout fragment.
type FragmentKind int

const (
	FragmentEmpty FragmentKind = iota
	FragmentText
	FragmentImage
	FragmentRule
	FragmentLinks
	FragmentGap
)

// Fragment is the intermediate, per-block markup unit produced by the
// renderer and lowered to HTML by the layout compiler. Fragments carry
// raw, unescaped strings; escaping happens exactly once, during
// lowering. Keeping the renderer on this model instead of raw strings
// makes double-escaping structurally impossible.
type Fragment struct {
	Kind FragmentKind

	// FragmentText
	Text  string
	Style textStyle

	// FragmentImage
	URL    string
	Alt    string
	Width  int
	Height int
	Link   string

	// FragmentRule
	Color     string
	Thickness int

	// FragmentLinks
	Items    []linkItem
	IconSize int

	// FragmentGap
	Gap int
}

// textStyle is the resolved (defaults applied) styling of a text
// fragment.
type textStyle struct {
	FontSize   int
	Color      string
	FontFamily string
	Muted      bool // small offset legal text
}

// linkItem is one resolved icon link in a FragmentLinks fragment.
type linkItem struct {
	Platform string
	URL      string
	IconURL  string
}

// emptyFragment is the explicit "renders to nothing" result. It
// contributes zero bytes and zero warnings to the output.
var emptyFragment = Fragment{Kind: FragmentEmpty}

// resolveStyle applies block style overrides on top of the documented
// defaults.
func resolveStyle(s *Styles) textStyle {
	st := textStyle{
		FontSize:   DefaultFontSize,
		Color:      DefaultColor,
		FontFamily: DefaultFontFamily,
	}
	if s == nil {
		return st
	}
	if s.FontSize > 0 {
		st.FontSize = s.FontSize
	}
	if s.Color != "" {
		st.Color = s.Color
	}
	if s.FontFamily != "" {
		st.FontFamily = s.FontFamily
	}
	return st
}
