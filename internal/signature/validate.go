package signature

import (
	"regexp"
	"strings"
)

// Validation is the verdict of the email-safety linter. Valid is true
// iff no risky constructs were found.
type Validation struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings"`
}

// Risky constructs known to break in major mail clients. Several
// widely deployed clients render HTML with a document-processor engine
// whose CSS support diverges sharply from browsers.
var (
	// The boundary check keeps compound properties like
	// background-position from tripping the positioning warning.
	reCSSPosition = regexp.MustCompile(`(^|[^-a-z])position\s*:`)
	reDisplayFlex = regexp.MustCompile(`display\s*:\s*flex`)
	reDisplayGrid = regexp.MustCompile(`display\s*:\s*grid`)
)

// Validate runs a read-only safety pass over final HTML. It never
// mutates the input and never blocks compilation; the warnings are
// advisory, surfaced to the template editor.
func Validate(html string) Validation {
	lower := strings.ToLower(html)
	warnings := []string{}

	if reCSSPosition.MatchString(lower) {
		warnings = append(warnings, "CSS positioning is ignored or mangled by most mail clients")
	}
	if reDisplayFlex.MatchString(lower) {
		warnings = append(warnings, "flexbox layout is not supported by most mail clients")
	}
	if reDisplayGrid.MatchString(lower) {
		warnings = append(warnings, "grid layout is not supported by most mail clients")
	}
	if strings.Contains(lower, "@import") {
		warnings = append(warnings, "@import rules are stripped by most mail clients")
	}
	if strings.Contains(lower, "@font-face") {
		warnings = append(warnings, "@font-face custom fonts are unreliable across mail clients")
	}

	return Validation{
		Valid:    len(warnings) == 0,
		Warnings: warnings,
	}
}
