// Package settings merges the layered token and email-template configuration.
//
// Precedence, lowest first: built-in defaults, deployment configuration
// (environment), then the settings record persisted by administrators.
// An empty string or a non-positive number at any layer is "unset" and falls
// through to the layer below it.
package settings

import (
	"strings"

	"github.com/BradenHooton/magiclink/internal/models"
)

// Built-in token defaults.
const (
	DefaultTTLMinutes  = 15
	DefaultTokenLength = 32
	DefaultCodeLength  = 6
)

// Accepted credential lengths. Upper bounds match the magic_tokens columns
// and the code validation on /oauth/token.
const (
	MinTokenLength = 16
	MaxTokenLength = 255
	MinCodeLength  = 4
	MaxCodeLength  = 32
)

// DefaultSubject is used when no layer sets a subject.
const DefaultSubject = "Your sign-in link"

// DefaultTextTemplate is the built-in plain-text body.
var DefaultTextTemplate = strings.Join([]string{
	"Hello,",
	"",
	"Use the magic link below to finish signing in:",
	"{{MAGIC_LINK}}",
	"",
	"Or enter the one-time code:",
	"{{CODE}}",
	"",
	"If you did not request this email, you can safely ignore it.",
}, "\n")

// DefaultHTMLTemplate is the built-in HTML body.
const DefaultHTMLTemplate = `
  <p>Hello,</p>
  <p>
    Use the magic link below to finish signing in:<br />
    <a href="{{MAGIC_LINK}}">{{MAGIC_LINK}}</a>
  </p>
  <p>
    Or enter the one-time code: <strong>{{CODE}}</strong>
  </p>
  <p>If you did not request this email, you can safely ignore it.</p>
`

// BuiltinToken returns the built-in token settings.
func BuiltinToken() models.TokenSettings {
	return models.TokenSettings{
		TTLMinutes:  DefaultTTLMinutes,
		TokenLength: DefaultTokenLength,
		CodeLength:  DefaultCodeLength,
	}
}

// BuiltinEmail returns the built-in email template settings.
func BuiltinEmail() models.EmailTemplateSettings {
	return models.EmailTemplateSettings{
		Subject: DefaultSubject,
		Text:    DefaultTextTemplate,
		HTML:    DefaultHTMLTemplate,
	}
}

// ResolveEmail merges the three email layers field by field.
func ResolveEmail(defaults, deployment, persisted models.EmailTemplateSettings) models.EmailTemplateSettings {
	return models.EmailTemplateSettings{
		DefaultFrom:    firstString(persisted.DefaultFrom, deployment.DefaultFrom, defaults.DefaultFrom),
		DefaultReplyTo: firstString(persisted.DefaultReplyTo, deployment.DefaultReplyTo, defaults.DefaultReplyTo),
		Subject:        firstString(persisted.Subject, deployment.Subject, defaults.Subject),
		Text:           firstString(persisted.Text, deployment.Text, defaults.Text),
		HTML:           firstString(persisted.HTML, deployment.HTML, defaults.HTML),
	}
}

// ResolveToken merges the token layers field by field. Every field of the
// result is positive: when neither layer sets a value the numeric fallbacks
// 15 minutes, 32 characters and 6 digits apply. Lengths outside the accepted
// bounds count as unset.
func ResolveToken(defaults, deployment models.TokenSettings) models.TokenSettings {
	return models.TokenSettings{
		TTLMinutes:  firstPositive(deployment.TTLMinutes, defaults.TTLMinutes, DefaultTTLMinutes),
		TokenLength: firstInRange(MinTokenLength, MaxTokenLength, deployment.TokenLength, defaults.TokenLength, DefaultTokenLength),
		CodeLength:  firstInRange(MinCodeLength, MaxCodeLength, deployment.CodeLength, defaults.CodeLength, DefaultCodeLength),
	}
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstInRange(lo, hi int, values ...int) int {
	for _, v := range values {
		if v >= lo && v <= hi {
			return v
		}
	}
	return 0
}
