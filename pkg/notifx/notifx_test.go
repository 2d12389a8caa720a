package notifx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/notifx"
	"github.com/Abraxas-365/authlink/pkg/notifx/notifxconsole"
)

func TestClient_SendEmailVerification(t *testing.T) {
	provider := notifxconsole.NewConsoleProvider()
	client := notifx.NewClient(provider, "noreply@authlink.dev")

	err := client.SendEmailVerification(context.Background(), notifx.VerificationEmail{
		To:       "alice@example.com",
		Link:     "https://app.example.com/verify?token=abc",
		AppName:  "Authlink",
		TenantID: "public",
	})
	require.NoError(t, err)

	sent := provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "noreply@authlink.dev", sent[0].From)
	assert.Equal(t, []string{"alice@example.com"}, sent[0].To)
	assert.Equal(t, "Authlink: verify your email", sent[0].Subject)
	assert.Contains(t, sent[0].HTMLBody, `href="https://app.example.com/verify?token=abc"`)
	assert.Contains(t, sent[0].TextBody, "https://app.example.com/verify?token=abc")
}

func TestClient_SendPasswordlessCode(t *testing.T) {
	provider := notifxconsole.NewConsoleProvider()
	client := notifx.NewClient(provider, "noreply@authlink.dev")

	err := client.SendPasswordlessCode(context.Background(), notifx.PasswordlessCodeEmail{
		To:       "alice@example.com",
		Code:     "042917",
		ValidFor: "15 minutes",
		AppName:  "Authlink",
		TenantID: "public",
	})
	require.NoError(t, err)

	sent := provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Authlink: your sign in code", sent[0].Subject)
	assert.Contains(t, sent[0].HTMLBody, "<strong>042917</strong>")
	assert.Contains(t, sent[0].TextBody, "expires in 15 minutes")
}

func TestClient_RegisterTemplate(t *testing.T) {
	provider := notifxconsole.NewConsoleProvider()
	client := notifx.NewClient(provider, "x@y.z")

	err := client.RegisterTemplate("linked", notifx.EmailTemplate{
		Subject: "{{.App}}: a sign in method was added",
		HTML:    "<p>{{.Method}} is now linked</p>",
	})
	require.NoError(t, err)

	err = client.SendTemplatedEmail(context.Background(), "linked",
		map[string]string{"App": "Authlink", "Method": "<b>google</b>"},
		notifx.EmailMessage{To: []string{"a@b.c"}})
	require.NoError(t, err)

	sent := provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Authlink: a sign in method was added", sent[0].Subject)
	assert.Equal(t, "<p>&lt;b&gt;google&lt;/b&gt; is now linked</p>", sent[0].HTMLBody)
	assert.Empty(t, sent[0].TextBody)

	err = client.RegisterTemplate("broken", notifx.EmailTemplate{Subject: "{{.Oops", HTML: "x"})
	assert.True(t, errx.IsCode(err, notifx.ErrTemplateParse))
}

func TestClient_RejectsInvalidMessages(t *testing.T) {
	client := notifx.NewClient(notifxconsole.NewConsoleProvider(), "x@y.z")

	err := client.SendEmail(context.Background(), notifx.EmailMessage{Subject: "s"})
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, notifx.ErrInvalidMessage))

	err = client.SendTemplatedEmail(context.Background(), "missing", nil, notifx.EmailMessage{To: []string{"a@b.c"}, Subject: "s"})
	assert.True(t, errx.IsCode(err, notifx.ErrTemplateNotFound))
}

func TestClient_NoProvider(t *testing.T) {
	client := notifx.NewClient(nil, "x@y.z")
	err := client.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@b.c"}, Subject: "s"})
	assert.True(t, errx.IsCode(err, notifx.ErrNoProvider))
}
