package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// Channel is where a code is delivered.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// OTP is a one time code sent to a contact. DeviceID identifies the code
// to the client that asked for it.
type OTP struct {
	DeviceID    string          `json:"deviceId"`
	TenantID    kernel.TenantID `json:"tenantId"`
	Channel     Channel         `json:"channel"`
	Contact     string          `json:"contact"`
	Code        string          `json:"code"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (o *OTP) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// AttemptsLeft is how many wrong codes the device still accepts.
func (o *OTP) AttemptsLeft() int {
	if left := o.MaxAttempts - o.Attempts; left > 0 {
		return left
	}
	return 0
}

// Check counts one attempt and reports whether code matches. The caller
// persists or discards o depending on the outcome.
func (o *OTP) Check(code string, now time.Time) error {
	if o.IsExpired(now) {
		return ErrOTPExpired()
	}
	if o.AttemptsLeft() == 0 {
		return ErrTooManyAttempts()
	}
	o.Attempts++
	if o.Code != code {
		return ErrInvalidOTP().WithDetail("attempts_remaining", o.AttemptsLeft())
	}
	return nil
}

// GenerateCode returns a cryptographically random numeric code of length
// digits, zero padded.
func GenerateCode(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
