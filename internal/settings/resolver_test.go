package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/magiclink/internal/models"
)

func TestResolveEmail_Precedence(t *testing.T) {
	defaults := models.EmailTemplateSettings{
		DefaultFrom: "default@example.com",
		Subject:     "Default subject",
		Text:        "default text",
		HTML:        "default html",
	}
	deployment := models.EmailTemplateSettings{
		DefaultFrom:    "deploy@example.com",
		DefaultReplyTo: "reply@example.com",
		Subject:        "Deploy subject",
	}
	persisted := models.EmailTemplateSettings{
		Subject: "Persisted subject",
		HTML:    "persisted html",
	}

	got := ResolveEmail(defaults, deployment, persisted)

	assert.Equal(t, models.EmailTemplateSettings{
		DefaultFrom:    "deploy@example.com",
		DefaultReplyTo: "reply@example.com",
		Subject:        "Persisted subject",
		Text:           "default text",
		HTML:           "persisted html",
	}, got)
}

func TestResolveEmail_EmptyStringFallsThrough(t *testing.T) {
	got := ResolveEmail(BuiltinEmail(), models.EmailTemplateSettings{Subject: ""}, models.EmailTemplateSettings{Subject: ""})

	assert.Equal(t, DefaultSubject, got.Subject)
	assert.Equal(t, DefaultTextTemplate, got.Text)
	assert.Equal(t, DefaultHTMLTemplate, got.HTML)
	assert.Empty(t, got.DefaultFrom)
}

func TestResolveToken_DeploymentOverridesDefaults(t *testing.T) {
	got := ResolveToken(BuiltinToken(), models.TokenSettings{TTLMinutes: 30, CodeLength: 8})

	assert.Equal(t, models.TokenSettings{TTLMinutes: 30, TokenLength: 32, CodeLength: 8}, got)
}

func TestResolveToken_NumericFallbacks(t *testing.T) {
	got := ResolveToken(models.TokenSettings{}, models.TokenSettings{TTLMinutes: -1, TokenLength: 0})

	assert.Equal(t, models.TokenSettings{TTLMinutes: 15, TokenLength: 32, CodeLength: 6}, got)
}

func TestResolveToken_OutOfBoundsLengthsFallBack(t *testing.T) {
	tests := []struct {
		name       string
		deployment models.TokenSettings
		want       models.TokenSettings
	}{
		{"token too long", models.TokenSettings{TokenLength: MaxTokenLength + 1}, models.TokenSettings{TTLMinutes: 15, TokenLength: 32, CodeLength: 6}},
		{"token too short", models.TokenSettings{TokenLength: MinTokenLength - 1}, models.TokenSettings{TTLMinutes: 15, TokenLength: 32, CodeLength: 6}},
		{"code too long", models.TokenSettings{CodeLength: MaxCodeLength + 8}, models.TokenSettings{TTLMinutes: 15, TokenLength: 32, CodeLength: 6}},
		{"code too short", models.TokenSettings{CodeLength: MinCodeLength - 1}, models.TokenSettings{TTLMinutes: 15, TokenLength: 32, CodeLength: 6}},
		{"upper bounds accepted", models.TokenSettings{TokenLength: MaxTokenLength, CodeLength: MaxCodeLength}, models.TokenSettings{TTLMinutes: 15, TokenLength: MaxTokenLength, CodeLength: MaxCodeLength}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveToken(BuiltinToken(), tt.deployment))
		})
	}
}

func TestDefaultTemplates_UsePlaceholders(t *testing.T) {
	assert.Contains(t, DefaultTextTemplate, "{{MAGIC_LINK}}")
	assert.Contains(t, DefaultTextTemplate, "{{CODE}}")
	assert.Contains(t, DefaultHTMLTemplate, "{{MAGIC_LINK}}")
	assert.Contains(t, DefaultHTMLTemplate, "{{CODE}}")
}
