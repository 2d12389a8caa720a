package otpinfra_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/iam/otp/otpinfra"
	"github.com/Abraxas-365/authlink/pkg/notifx"
	"github.com/Abraxas-365/authlink/pkg/notifx/notifxconsole"
)

func TestEmailNotifier_SendsCode(t *testing.T) {
	provider := notifxconsole.NewConsoleProvider()
	n := otpinfra.NewEmailNotifier(notifx.NewClient(provider, "noreply@authlink.dev"), "Authlink")

	o := newOTP("dev-1")
	require.NoError(t, n.SendOTP(context.Background(), o, 15*time.Minute))

	sent := provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"Alice@Example.com"}, sent[0].To)
	assert.Contains(t, sent[0].TextBody, "123456")
	assert.Contains(t, sent[0].TextBody, "15 minutes")
}

func TestEmailNotifier_RefusesPhone(t *testing.T) {
	provider := notifxconsole.NewConsoleProvider()
	n := otpinfra.NewEmailNotifier(notifx.NewClient(provider, "noreply@authlink.dev"), "Authlink")

	o := newOTP("dev-1")
	o.Channel = otp.ChannelPhone
	o.Contact = "+14155550100"

	err := n.SendOTP(context.Background(), o, time.Minute)
	assert.True(t, errx.IsCode(err, otp.CodeChannelUnsupported))
	assert.Empty(t, provider.Sent())
}
