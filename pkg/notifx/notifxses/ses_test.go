package notifxses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/notifx"
)

type fakeSES struct {
	in  *ses.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESProvider_BuildsInput(t *testing.T) {
	api := &fakeSES{}
	p := NewSESProvider(api, "noreply@authlink.dev")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{
		To:       []string{"alice@example.com"},
		Subject:  "hi",
		HTMLBody: "<p>hi</p>",
	}, notifx.WithTags(map[string]string{"kind": "email_verification", "tenant": "public"}), notifx.WithConfigID("cfg"))
	require.NoError(t, err)

	require.NotNil(t, api.in)
	assert.Equal(t, "noreply@authlink.dev", aws.ToString(api.in.Source))
	assert.Equal(t, []string{"alice@example.com"}, api.in.Destination.ToAddresses)
	assert.Equal(t, "cfg", aws.ToString(api.in.ConfigurationSetName))
	require.Len(t, api.in.Tags, 2)
	assert.Equal(t, "kind", aws.ToString(api.in.Tags[0].Name))
	assert.Nil(t, api.in.Message.Body.Text)
}

func TestSESProvider_WrapsFailure(t *testing.T) {
	p := NewSESProvider(&fakeSES{err: errors.New("throttled")}, "noreply@authlink.dev")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@x.io"}, Subject: "s"})
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, ErrSendFailed))
}
