package otp

import (
	"context"
	"time"

	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// Repository stores pending codes. Get and GetLatestByContact return nil,
// nil when nothing matches.
type Repository interface {
	Create(ctx context.Context, o *OTP) error
	Get(ctx context.Context, deviceID string) (*OTP, error)
	GetLatestByContact(ctx context.Context, tenantID kernel.TenantID, contact string) (*OTP, error)
	Update(ctx context.Context, o *OTP) error
	Delete(ctx context.Context, o *OTP) error
}

// Notifier delivers a code to its contact.
type Notifier interface {
	SendOTP(ctx context.Context, o *OTP, validFor time.Duration) error
}
