// Package email composes and delivers magic-link emails.
package email

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`(?i){{\s*([A-Z_]+)\s*}}`)

// Render substitutes {{NAME}} placeholders in tmpl with vars[NAME]. Names are
// matched case-insensitively and looked up uppercased; unknown names render
// as the empty string. ok is false when there is no template to render, in
// which case the caller should leave the corresponding field unset.
func Render(tmpl string, vars map[string]string) (rendered string, ok bool) {
	if tmpl == "" {
		return "", false
	}

	rendered = placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[strings.ToUpper(name)]
	})

	return rendered, true
}
