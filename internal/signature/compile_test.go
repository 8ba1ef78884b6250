package signature

import (
	"strings"
	"testing"
	"time"
)

var compileRef = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func TestCompileAt_Deterministic(t *testing.T) {
	blocks := []Block{
		{Type: BlockText, Content: "Jane Doe"},
		{Type: BlockDivider},
		{Type: BlockSocialLinks, Links: []SocialLink{
			{Platform: "linkedin", URL: "https://linkedin.test/jane"},
			{Platform: "github", URL: "https://github.test/jane"},
		}},
		{Type: BlockSpacer, Height: 10},
	}
	ctx := RenderContext{User: User{FirstName: "Jane"}}

	first := CompileAt(blocks, ctx, compileRef)
	for i := 0; i < 10; i++ {
		again := CompileAt(blocks, ctx, compileRef)
		if again.HTML != first.HTML {
			t.Fatalf("run %d produced different HTML", i)
		}
		if len(again.Warnings) != len(first.Warnings) {
			t.Fatalf("run %d produced different warnings", i)
		}
	}
}

func TestCompileAt_EscapesTextExactlyOnce(t *testing.T) {
	blocks := []Block{
		{Type: BlockText, Content: `Research & Development <"quotes" 'here'>`},
	}

	result := CompileAt(blocks, RenderContext{}, compileRef)

	if !strings.Contains(result.HTML, "Research &amp; Development &lt;&#34;quotes&#34; &#39;here&#39;&gt;") {
		t.Errorf("text not escaped exactly once:\n%s", result.HTML)
	}
	if strings.Contains(result.HTML, "&amp;amp;") || strings.Contains(result.HTML, "&amp;lt;") {
		t.Errorf("text double-escaped:\n%s", result.HTML)
	}
}

func TestCompileAt_EscapesResolvedVariables(t *testing.T) {
	blocks := []Block{{Type: BlockVariable, Field: "title"}}
	ctx := RenderContext{User: User{Title: "R&D <Lead>"}}

	result := CompileAt(blocks, ctx, compileRef)

	if !strings.Contains(result.HTML, "R&amp;D &lt;Lead&gt;") {
		t.Errorf("variable value not escaped:\n%s", result.HTML)
	}
}

func TestCompileAt_EmptyFragmentLaw(t *testing.T) {
	with := CompileAt([]Block{
		{Type: BlockText, Content: "Jane"},
	}, RenderContext{}, compileRef)

	withUnresolved := CompileAt([]Block{
		{Type: BlockText, Content: "Jane"},
		{Type: BlockVariable, Field: "title"}, // unresolved, no fallback
	}, RenderContext{}, compileRef)

	if with.HTML != withUnresolved.HTML {
		t.Errorf("unresolved variable contributed visible output:\n%s\nvs\n%s", with.HTML, withUnresolved.HTML)
	}
	if len(withUnresolved.Warnings) != 0 {
		t.Errorf("unresolved variable produced warnings: %v", withUnresolved.Warnings)
	}
}

func TestCompileAt_OrderPreserved(t *testing.T) {
	a := Block{Type: BlockText, Content: "AlphaFirst"}
	b := Block{Type: BlockText, Content: "BetaSecond"}

	forward := CompileAt([]Block{a, b}, RenderContext{}, compileRef)
	reversed := CompileAt([]Block{b, a}, RenderContext{}, compileRef)

	fi := strings.Index(forward.HTML, "AlphaFirst")
	fj := strings.Index(forward.HTML, "BetaSecond")
	if fi < 0 || fj < 0 || fi > fj {
		t.Errorf("forward order wrong: alpha=%d beta=%d", fi, fj)
	}

	ri := strings.Index(reversed.HTML, "AlphaFirst")
	rj := strings.Index(reversed.HTML, "BetaSecond")
	if ri < 0 || rj < 0 || rj > ri {
		t.Errorf("reversed order wrong: alpha=%d beta=%d", ri, rj)
	}
}

func TestCompileAt_ConcreteScenario(t *testing.T) {
	blocks := []Block{
		{Type: BlockText, Content: "Jane Doe"},
		{Type: BlockVariable, Field: "title", Fallback: ""},
		{Type: BlockVariable, Field: "company"},
	}
	ctx := RenderContext{
		User:         User{},
		Organization: Organization{Name: "Acme"},
	}

	result := CompileAt(blocks, ctx, compileRef)

	if !strings.Contains(result.HTML, "Jane Doe") {
		t.Error("output missing literal text block content")
	}
	if !strings.Contains(result.HTML, "Acme") {
		t.Error("output missing resolved company")
	}
	// The title line is omitted entirely: exactly two content rows.
	if got := strings.Count(result.HTML, "<tr>"); got != 2 {
		t.Errorf("row count = %d, want 2 (title row must be absent)", got)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", result.Warnings)
	}
}

func TestCompileAt_ContainerAndClosedElements(t *testing.T) {
	blocks := []Block{
		{Type: BlockText, Content: "Jane"},
		{Type: BlockImage, URL: "https://cdn.test/logo.png", Width: 80, Height: 40, Link: "https://acme.test"},
		{Type: BlockDivider},
		{Type: BlockSpacer, Height: 12},
	}

	result := CompileAt(blocks, RenderContext{}, compileRef)

	if !strings.Contains(result.HTML, `max-width: 600px`) {
		t.Error("output missing 600px max-width container")
	}
	if !strings.HasPrefix(result.HTML, "<table") || !strings.HasSuffix(result.HTML, "</table>") {
		t.Error("output not wrapped in a single table")
	}
	for _, pair := range [][2]string{
		{"<table", "</table>"},
		{"<tr>", "</tr>"},
		{"<td", "</td>"},
		{"<a ", "</a>"},
	} {
		open := strings.Count(result.HTML, pair[0])
		closed := strings.Count(result.HTML, pair[1])
		if open != closed {
			t.Errorf("unbalanced %s: %d open, %d closed", pair[0], open, closed)
		}
	}
	if !strings.Contains(result.HTML, `width="80" height="40"`) {
		t.Errorf("image missing explicit dimensions:\n%s", result.HTML)
	}
}

func TestCompileAt_ImageDefaultWidth(t *testing.T) {
	result := CompileAt([]Block{
		{Type: BlockImage, URL: "https://cdn.test/logo.png"},
	}, RenderContext{}, compileRef)

	if !strings.Contains(result.HTML, `width="120"`) {
		t.Errorf("image without dimensions did not get an explicit width:\n%s", result.HTML)
	}
}

func TestCompileAt_BannerBoundary(t *testing.T) {
	end := compileRef

	visible := CompileAt([]Block{
		{Type: BlockBanner, URL: "https://cdn.test/sale.png", EndDate: &end},
	}, RenderContext{}, compileRef)
	if !strings.Contains(visible.HTML, "sale.png") {
		t.Error("banner ending exactly at the reference instant should be visible")
	}

	hidden := CompileAt([]Block{
		{Type: BlockBanner, URL: "https://cdn.test/sale.png", EndDate: &end},
	}, RenderContext{}, compileRef.Add(time.Microsecond))
	if strings.Contains(hidden.HTML, "sale.png") {
		t.Error("banner one microsecond past endDate should be hidden")
	}
	if len(hidden.Warnings) != 0 {
		t.Errorf("hidden banner produced warnings: %v", hidden.Warnings)
	}
}

func TestCompileAt_FailSoftKeepsCompiling(t *testing.T) {
	blocks := []Block{
		{Type: BlockText, Content: "Before"},
		{Type: BlockImage}, // structurally invalid: no URL
		{Type: BlockText, Content: "After"},
	}

	result := CompileAt(blocks, RenderContext{}, compileRef)

	if !strings.Contains(result.HTML, "Before") || !strings.Contains(result.HTML, "After") {
		t.Error("bad block took down surrounding blocks")
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings = %v, want exactly 1", result.Warnings)
	}
}

func TestCompileAt_EmptyTemplate(t *testing.T) {
	result := CompileAt(nil, RenderContext{}, compileRef)

	if !strings.HasPrefix(result.HTML, "<table") || !strings.HasSuffix(result.HTML, "</table>") {
		t.Errorf("empty template should still produce a well-formed container:\n%s", result.HTML)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", result.Warnings)
	}
}

func TestAppendFragment(t *testing.T) {
	tests := []struct {
		name     string
		compiled string
		fragment string
		want     string
	}{
		{"empty fragment leaves body untouched", "<table></table>", "", "<table></table>"},
		{"fragment appended verbatim", "<table></table>", "<table>legal</table>", "<table></table>\n<table>legal</table>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AppendFragment(tt.compiled, tt.fragment); got != tt.want {
				t.Errorf("AppendFragment() = %q, want %q", got, tt.want)
			}
		})
	}
}
