package otpsrv

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

type Service struct {
	repo     otp.Repository
	notifier otp.Notifier
	cfg      config.PasswordlessConfig
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo otp.Repository, notifier otp.Notifier, cfg config.PasswordlessConfig, opts ...Option) *Service {
	s := &Service{repo: repo, notifier: notifier, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate creates a code for contact and sends it. A contact may ask for a
// new code once per resend cooldown.
func (s *Service) Generate(ctx context.Context, tenantID kernel.TenantID, channel otp.Channel, contact string) (*otp.OTP, error) {
	now := s.now()

	existing, err := s.repo.GetLatestByContact(ctx, tenantID, contact)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.IsExpired(now) {
		if wait := s.cfg.ResendCooldown - now.Sub(existing.CreatedAt); wait > 0 {
			return nil, otp.ErrTooManyRequests().WithDetail("retry_after", wait.Round(time.Second).String())
		}
	}

	code, err := otp.GenerateCode(s.cfg.CodeLength)
	if err != nil {
		return nil, errx.Wrap(err, "failed to generate OTP code", errx.TypeInternal)
	}

	o := &otp.OTP{
		DeviceID:    uuid.NewString(),
		TenantID:    tenantID,
		Channel:     channel,
		Contact:     contact,
		Code:        code,
		MaxAttempts: s.cfg.MaxAttempts,
		ExpiresAt:   now.Add(s.cfg.CodeTTL),
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}

	if err := s.notifier.SendOTP(ctx, o, s.cfg.CodeTTL); err != nil {
		_ = s.repo.Delete(ctx, o)
		if errx.IsCode(err, otp.CodeChannelUnsupported) {
			return nil, err
		}
		return nil, errx.Wrap(err, "failed to send OTP", errx.TypeExternal)
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"tenant_id": tenantID,
		"device_id": o.DeviceID,
		"channel":   channel,
	}).Debug("otp: code sent")
	return o, nil
}

// Verify consumes the code of deviceID. A correct code is deleted so it
// cannot be replayed. Wrong codes count towards MaxAttempts; the device is
// dropped once they run out or the code expired.
func (s *Service) Verify(ctx context.Context, tenantID kernel.TenantID, deviceID, code string) (*otp.OTP, error) {
	o, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if o == nil || o.TenantID != tenantID {
		return nil, otp.ErrUnknownDevice()
	}

	checkErr := o.Check(code, s.now())
	switch {
	case checkErr == nil:
	case errx.IsCode(checkErr, otp.CodeInvalidOTP) && o.AttemptsLeft() > 0:
		if err := s.repo.Update(ctx, o); err != nil {
			return nil, err
		}
		return nil, checkErr
	case errx.IsCode(checkErr, otp.CodeInvalidOTP):
		checkErr = otp.ErrTooManyAttempts()
	}

	if err := s.repo.Delete(ctx, o); err != nil {
		return nil, err
	}
	if checkErr != nil {
		logx.WithContext(ctx).WithField("device_id", deviceID).Debug("otp: device dropped")
		return nil, checkErr
	}
	return o, nil
}
