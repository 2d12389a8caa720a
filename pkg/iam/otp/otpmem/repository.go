package otpmem

import (
	"context"
	"strings"
	"sync"

	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

var _ otp.Repository = (*Repository)(nil)

// Repository keeps codes in process. Expired codes stay until deleted.
type Repository struct {
	mu      sync.Mutex
	devices map[string]otp.OTP
	latest  map[string]string
}

func NewRepository() *Repository {
	return &Repository{devices: map[string]otp.OTP{}, latest: map[string]string{}}
}

func contactKey(tenantID kernel.TenantID, contact string) string {
	return tenantID.String() + ":" + strings.ToLower(contact)
}

func (r *Repository) Create(_ context.Context, o *otp.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[o.DeviceID] = *o
	r.latest[contactKey(o.TenantID, o.Contact)] = o.DeviceID
	return nil
}

func (r *Repository) Get(_ context.Context, deviceID string) (*otp.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.devices[deviceID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *Repository) GetLatestByContact(_ context.Context, tenantID kernel.TenantID, contact string) (*otp.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.devices[r.latest[contactKey(tenantID, contact)]]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *Repository) Update(_ context.Context, o *otp.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[o.DeviceID]; ok {
		r.devices[o.DeviceID] = *o
	}
	return nil
}

func (r *Repository) Delete(_ context.Context, o *otp.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, o.DeviceID)
	key := contactKey(o.TenantID, o.Contact)
	if r.latest[key] == o.DeviceID {
		delete(r.latest, key)
	}
	return nil
}
