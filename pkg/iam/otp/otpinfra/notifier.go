package otpinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/notifx"
)

// CodeMailer is the part of notifx.Client the notifier needs.
type CodeMailer interface {
	SendPasswordlessCode(ctx context.Context, p notifx.PasswordlessCodeEmail) error
}

var _ otp.Notifier = (*EmailNotifier)(nil)

// EmailNotifier mails codes through notifx. Phone codes are refused.
type EmailNotifier struct {
	mailer  CodeMailer
	appName string
}

func NewEmailNotifier(mailer CodeMailer, appName string) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, appName: appName}
}

func (n *EmailNotifier) SendOTP(ctx context.Context, o *otp.OTP, validFor time.Duration) error {
	if o.Channel != otp.ChannelEmail {
		return otp.ErrChannelUnsupported(o.Channel)
	}
	return n.mailer.SendPasswordlessCode(ctx, notifx.PasswordlessCodeEmail{
		To:       o.Contact,
		Code:     o.Code,
		ValidFor: humanMinutes(validFor),
		AppName:  n.appName,
		TenantID: o.TenantID.String(),
	})
}

func humanMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute).Minutes())
	if m <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
