package signature

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// maxWidth is the outer container width in pixels. 600px renders
// acceptably in both desktop and mobile mail clients.
const maxWidth = 600

// defaultImageWidth is applied when an image block carries no explicit
// width. Mail clients must never be left to infer intrinsic sizing.
const defaultImageWidth = 120

// Result is the output of one compilation: the final HTML document and
// the non-fatal diagnostics collected along the way. Result is data;
// compiling the same inputs with the same reference instant yields a
// byte-identical Result.
type Result struct {
	HTML     string   `json:"html"`
	Warnings []string `json:"warnings"`
}

// Compile renders the template at the current instant.
func Compile(blocks []Block, ctx RenderContext) Result {
	return CompileAt(blocks, ctx, time.Now())
}

// CompileAt renders the ordered blocks against the render context into
// a single table-based, inline-styled HTML document. The reference
// instant gates time-windowed content and is read exactly once for the
// whole pass. CompileAt never fails: malformed blocks degrade to
// nothing and a warning.
func CompileAt(blocks []Block, ctx RenderContext, ref time.Time) Result {
	diag := &diagnostics{}

	var rows strings.Builder
	for i, b := range blocks {
		diag.index = i
		frag := renderBlock(b, ctx, ref, diag)
		if frag.Kind == FragmentEmpty {
			continue
		}
		rows.WriteString(lowerFragment(frag))
	}

	var doc strings.Builder
	doc.WriteString(`<table cellpadding="0" cellspacing="0" border="0" role="presentation" width="`)
	doc.WriteString(fmt.Sprintf("%d", maxWidth))
	doc.WriteString(`" style="border-collapse: collapse; max-width: `)
	doc.WriteString(fmt.Sprintf("%dpx", maxWidth))
	doc.WriteString(`;">`)
	doc.WriteString("\n")
	doc.WriteString(rows.String())
	doc.WriteString(`</table>`)

	warnings := diag.warnings
	if warnings == nil {
		warnings = []string{}
	}
	return Result{HTML: doc.String(), Warnings: warnings}
}

// AppendFragment concatenates an externally resolved disclaimer
// fragment after the compiled body. The fragment is trusted output
// from the disclaimer service and is appended verbatim; an empty
// fragment leaves the document untouched.
func AppendFragment(compiled, fragment string) string {
	if fragment == "" {
		return compiled
	}
	return compiled + "\n" + fragment
}

// lowerFragment turns one intermediate fragment into a table row.
// This is the single place literal text and attribute values are
// escaped, and every element opened here is closed here.
func lowerFragment(f Fragment) string {
	switch f.Kind {
	case FragmentText:
		return lowerText(f)
	case FragmentImage:
		return lowerImage(f)
	case FragmentRule:
		return lowerRule(f)
	case FragmentLinks:
		return lowerLinks(f)
	case FragmentGap:
		return lowerGap(f)
	default:
		return ""
	}
}

func lowerText(f Fragment) string {
	style := fmt.Sprintf(
		"font-family: %s; font-size: %dpx; line-height: %dpx; color: %s;",
		esc(f.Style.FontFamily), f.Style.FontSize, f.Style.FontSize+6, esc(f.Style.Color),
	)
	if f.Style.Muted {
		style += " padding-top: 12px;"
	}
	return `<tr><td style="` + style + `">` + esc(f.Text) + "</td></tr>\n"
}

func lowerImage(f Fragment) string {
	width := f.Width
	if width <= 0 {
		width = defaultImageWidth
	}
	if width > maxWidth {
		width = maxWidth
	}

	img := fmt.Sprintf(`<img src="%s" alt="%s" width="%d"`, esc(f.URL), esc(f.Alt), width)
	if f.Height > 0 {
		img += fmt.Sprintf(` height="%d"`, f.Height)
	}
	img += ` border="0" style="display: block;" />`

	if f.Link != "" {
		img = `<a href="` + esc(f.Link) + `">` + img + `</a>`
	}
	return "<tr><td>" + img + "</td></tr>\n"
}

func lowerRule(f Fragment) string {
	style := fmt.Sprintf(
		"border-top-width: %dpx; border-top-style: solid; border-top-color: %s; font-size: 0; line-height: 0;",
		f.Thickness, esc(f.Color),
	)
	return `<tr><td style="` + style + `">&nbsp;</td></tr>` + "\n"
}

func lowerLinks(f Fragment) string {
	var b strings.Builder
	b.WriteString("<tr><td>")
	for i, item := range f.Items {
		if i > 0 {
			b.WriteString("&nbsp;")
		}
		b.WriteString(fmt.Sprintf(
			`<a href="%s"><img src="%s" alt="%s" width="%d" height="%d" border="0" style="display: inline-block;" /></a>`,
			esc(item.URL), esc(item.IconURL), esc(item.Platform), f.IconSize, f.IconSize,
		))
	}
	b.WriteString("</td></tr>\n")
	return b.String()
}

func lowerGap(f Fragment) string {
	return fmt.Sprintf(
		`<tr><td height="%d" style="font-size: 0; line-height: 0;">&nbsp;</td></tr>`+"\n",
		f.Gap,
	)
}

// esc HTML-escapes a literal string for use in element content or
// attribute values. Escapes &, <, >, " and ' exactly once.
func esc(s string) string {
	return html.EscapeString(s)
}
